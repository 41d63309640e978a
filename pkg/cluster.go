package analyzer

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// disjointSet is a union-find forest over hit indices.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

func (ds *disjointSet) union(i, j int) {
	ri, rj := ds.find(i), ds.find(j)
	if ri == rj {
		return
	}
	switch {
	case ds.rank[ri] < ds.rank[rj]:
		ds.parent[ri] = rj
	case ds.rank[ri] > ds.rank[rj]:
		ds.parent[rj] = ri
	default:
		ds.parent[rj] = ri
		ds.rank[ri]++
	}
}

// connected reports whether two hits belong to the same cluster: adjacent
// strips and a time difference strictly below dt.
func connected(a, b Hit, dt float64) bool {
	ds := a.Strip - b.Strip
	if ds != 1 && ds != -1 {
		return false
	}
	return math.Abs(a.Time-b.Time) < dt
}

// ClusterEvent groups the hits of one event into clusters. Each cluster
// lists hit indices in ascending order; clusters are ordered by their
// first hit. Every hit belongs to exactly one cluster.
func ClusterEvent(hits []Hit, dt float64) [][]int {
	if len(hits) == 0 {
		return nil
	}
	ds := newDisjointSet(len(hits))
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if connected(hits[i], hits[j], dt) {
				ds.union(i, j)
			}
		}
	}

	byRoot := make(map[int]int, len(hits))
	var clusters [][]int
	for i := range hits {
		root := ds.find(i)
		idx, ok := byRoot[root]
		if !ok {
			idx = len(clusters)
			byRoot[root] = idx
			clusters = append(clusters, nil)
		}
		clusters[idx] = append(clusters[idx], i)
	}
	return clusters
}

// ClusterStats is the outcome of clustering every event with one time
// constant. Sizes pools the size of every cluster of every non-empty
// event; Multiplicities has one entry per event, 0 for empty events.
type ClusterStats struct {
	TimeConstant     float64
	MeanSize         float64
	MeanMultiplicity float64
	// MeanSizeCMP1 is the mean cluster size of events with a single cluster.
	MeanSizeCMP1    float64
	MaxSize         int
	MaxMultiplicity int
	Sizes           []float64
	Multiplicities  []float64
	// Clusters holds, per event, the hit indices of each cluster.
	Clusters [][][]int
}

// Cluster runs ClusterEvent over all events and pools the distributions.
func Cluster(perEventHits [][]Hit, dt float64) ClusterStats {
	stats := ClusterStats{
		TimeConstant:   dt,
		Multiplicities: make([]float64, 0, len(perEventHits)),
		Clusters:       make([][][]int, len(perEventHits)),
	}
	var sizesCMP1 []float64
	for i, hits := range perEventHits {
		clusters := ClusterEvent(hits, dt)
		stats.Clusters[i] = clusters
		stats.Multiplicities = append(stats.Multiplicities, float64(len(clusters)))
		stats.MaxMultiplicity = max(stats.MaxMultiplicity, len(clusters))
		for _, c := range clusters {
			stats.Sizes = append(stats.Sizes, float64(len(c)))
			stats.MaxSize = max(stats.MaxSize, len(c))
		}
		if len(clusters) == 1 {
			sizesCMP1 = append(sizesCMP1, float64(len(clusters[0])))
		}
	}
	stats.MeanSize = meanOrZero(stats.Sizes)
	stats.MeanMultiplicity = meanOrZero(stats.Multiplicities)
	stats.MeanSizeCMP1 = meanOrZero(sizesCMP1)
	return stats
}

func meanOrZero(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// ClusterTimes are the nominal clustering time constant and its up/down
// variations, in ns.
type ClusterTimes struct {
	Nominal float64 `json:"nominal"`
	Up      float64 `json:"up"`
	Down    float64 `json:"down"`
}

// ClusterResult is the nominal clustering with systematic errors.
type ClusterResult struct {
	Nominal             ClusterStats
	Up                  ClusterStats
	Down                ClusterStats
	MeanSize            float64
	MeanMultiplicity    float64
	MeanSizeErr         float64
	MeanMultiplicityErr float64
}

// ClusterWithVariations clusters with the nominal, up and down time
// constants. The systematic error on each mean is the largest absolute
// deviation of either variation from the nominal value.
func ClusterWithVariations(perEventHits [][]Hit, times ClusterTimes) ClusterResult {
	nominal := Cluster(perEventHits, times.Nominal)
	up := Cluster(perEventHits, times.Up)
	down := Cluster(perEventHits, times.Down)

	sizeErr := math.Max(
		math.Abs(up.MeanSize-nominal.MeanSize),
		math.Abs(down.MeanSize-nominal.MeanSize))
	multiplicityErr := math.Max(
		math.Abs(up.MeanMultiplicity-nominal.MeanMultiplicity),
		math.Abs(down.MeanMultiplicity-nominal.MeanMultiplicity))

	return ClusterResult{
		Nominal:             nominal,
		Up:                  up,
		Down:                down,
		MeanSize:            nominal.MeanSize,
		MeanMultiplicity:    nominal.MeanMultiplicity,
		MeanSizeErr:         sizeErr,
		MeanMultiplicityErr: multiplicityErr,
	}
}

// ClusterStudyPoint is the outcome for one time constant of a study.
type ClusterStudyPoint struct {
	TimeConstant     float64 `json:"clusterTime"`
	MeanSize         float64 `json:"muonCLS"`
	MeanMultiplicity float64 `json:"muonCMP"`
	MeanSizeCMP1     float64 `json:"muonCLS_CMP1"`
}

// ClusterStudy scans the clustering time constant, in ascending order.
func ClusterStudy(perEventHits [][]Hit, times []float64) []ClusterStudyPoint {
	sorted := slices.Clone(times)
	slices.Sort(sorted)
	points := make([]ClusterStudyPoint, 0, len(sorted))
	for _, dt := range sorted {
		stats := Cluster(perEventHits, dt)
		points = append(points, ClusterStudyPoint{
			TimeConstant:     dt,
			MeanSize:         stats.MeanSize,
			MeanMultiplicity: stats.MeanMultiplicity,
			MeanSizeCMP1:     stats.MeanSizeCMP1,
		})
	}
	return points
}
