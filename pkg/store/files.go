package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"golang.org/x/exp/slices"
)

// DAQFileName is the raw event file of a HV point.
func DAQFileName(scanID int, hvPoint int) string {
	return fmt.Sprintf("Scan%06d_HV%d_DAQ.h5", scanID, hvPoint)
}

// CAENFileName is the monitoring file of a HV point.
func CAENFileName(scanID int, hvPoint int) string {
	return fmt.Sprintf("Scan%06d_HV%d_CAEN.h5", scanID, hvPoint)
}

var hvPointPattern = regexp.MustCompile(`_HV(\d+)_`)

// ParseHVPoint extracts the HV point number of a DAQ or CAEN file name.
func ParseHVPoint(name string) (int, error) {
	m := hvPointPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, fmt.Errorf("no HV point in file name %q", name)
	}
	return strconv.Atoi(m[1])
}

var digitRuns = regexp.MustCompile(`\d+|\D+`)

// NaturalLess orders strings comparing runs of digits by value, so that
// HV2 sorts before HV10.
func NaturalLess(a string, b string) bool {
	pa := digitRuns.FindAllString(a, -1)
	pb := digitRuns.FindAllString(b, -1)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			if na != nb {
				return na < nb
			}
			continue
		}
		return pa[i] < pb[i]
	}
	return len(pa) < len(pb)
}

// SortNatural sorts names in place with NaturalLess.
func SortNatural(names []string) {
	slices.SortStableFunc(names, func(a, b string) int {
		switch {
		case NaturalLess(a, b):
			return -1
		case NaturalLess(b, a):
			return 1
		}
		return 0
	})
}

// scanFiles lists the files of a scan with the given suffix, naturally
// sorted.
func scanFiles(dir string, scanID int, suffix string) ([]string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("Scan%06d_HV*_%s", scanID, suffix))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	SortNatural(files)
	return files, nil
}

// hvPointsOf returns the HV point numbers of the files in their order.
func hvPointsOf(files []string) ([]int, error) {
	points := make([]int, 0, len(files))
	for _, f := range files {
		hv, err := ParseHVPoint(f)
		if err != nil {
			return nil, err
		}
		points = append(points, hv)
	}
	return points, nil
}
