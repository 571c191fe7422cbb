package sample

// Dataset is the read side used by training: a fixed snapshot of the indices
// present when it was opened, addressed by position. Gaps in the index
// sequence are skipped.
type Dataset struct {
	store   *Store
	indices []int64
}

// OpenDataset snapshots the samples in dir.
func OpenDataset(dir string) (*Dataset, error) {
	st := &Store{dir: dir, compression: Zstd}
	idx, err := st.Indices()
	if err != nil {
		return nil, err
	}
	return &Dataset{store: st, indices: idx}, nil
}

// Len is the number of samples in the snapshot.
func (d *Dataset) Len() int { return len(d.indices) }

// Indices returns the global indices in position order.
func (d *Dataset) Indices() []int64 { return append([]int64(nil), d.indices...) }

// Get loads the sample at position i, 0 <= i < Len().
func (d *Dataset) Get(i int) (*Sample, error) {
	return d.store.Read(d.indices[i])
}
