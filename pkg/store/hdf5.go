package store

import (
	"errors"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// Chunk length of extendable tables.
const tableChunk = 32768

// STRLEN is the width of fixed-length string columns.
const STRLEN = 32

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func hdf5StringToGo(b [STRLEN]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func createFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

// createTable creates an extendable one dimensional table of compound
// records shaped like datatype.
func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()
	if err := plist.SetChunk([]uint{tableChunk}); err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			return nil, &ErrCreateTable{TableName: name, Err: err}
		}
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

// writeArrayToTable appends data after the first rowsInTable rows.
func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, rowsInTable int) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	start := uint(rowsInTable)
	if err := dataset.Resize([]uint{start + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()
	if err := filespace.SelectHyperslab([]uint{start}, nil, []uint{length}, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

// readTable reads a whole one dimensional dataset.
func readTable[T any](parent interface {
	OpenDataset(name string) (*hdf5.Dataset, error)
}, name string) ([]T, error) {
	dset, err := parent.OpenDataset(name)
	if err != nil {
		return nil, &ErrReadTable{TableName: name, Err: err}
	}
	defer dset.Close()

	space := dset.Space()
	n := space.SimpleExtentNPoints()
	space.Close()

	rows := make([]T, n)
	if n == 0 {
		return rows, nil
	}
	if err := dset.Read(&rows); err != nil {
		return nil, &ErrReadTable{TableName: name, Err: err}
	}
	return rows, nil
}

// writeFloatArray writes a fixed size one dimensional float64 dataset.
func writeFloatArray(file *hdf5.File, name string, values []float64) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return &ErrCreateTable{TableName: name, Err: err}
	}
	defer space.Close()
	dset, err := file.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return &ErrCreateTable{TableName: name, Err: err}
	}
	if len(values) == 0 {
		return dset.Close()
	}
	return errors.Join(dset.Write(&values), dset.Close())
}
