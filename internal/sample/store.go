package sample

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/qorgraph/internal/fsutil"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

const filePrefix = "data_"

// Store reads and writes the samples of one kernel-configuration directory.
// Workers write disjoint indices, so a Store needs no locking.
type Store struct {
	dir         string
	compression Compression
}

// OpenStore creates dir if needed. New samples are written with c.
func OpenStore(dir string, c Compression) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, "open sample store", err)
	}
	return &Store{dir: dir, compression: c}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path is where the sample with the given index is written.
func (s *Store) Path(index int64) string {
	return filepath.Join(s.dir, filePrefix+strconv.FormatInt(index, 10)+s.compression.Ext())
}

// Write persists sm under sm.Index.
func (s *Store) Write(sm *Sample) error {
	const op = "write sample"
	data, err := Marshal(sm, s.compression)
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.Persistence, op, err)
	}
	if err := fsutil.WriteFileAtomic(s.Path(sm.Index), data, 0o644); err != nil {
		return pipelineerr.Wrap(pipelineerr.Persistence, op, err)
	}
	return nil
}

// Exists reports whether a sample with the given index is stored, whatever
// its compression.
func (s *Store) Exists(index int64) bool {
	_, _, err := s.find(index)
	return err == nil
}

// Read loads the sample with the given index.
func (s *Store) Read(index int64) (*Sample, error) {
	const op = "read sample"
	path, c, err := s.find(index)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, op, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, op, err)
	}
	sm, err := Unmarshal(data, c)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, op, fmt.Errorf("%s: %w", path, err))
	}
	return sm, nil
}

func (s *Store) find(index int64) (string, Compression, error) {
	base := filepath.Join(s.dir, filePrefix+strconv.FormatInt(index, 10))
	for _, c := range []Compression{s.compression, Zstd, Brotli, None} {
		if _, err := os.Stat(base + c.Ext()); err == nil {
			return base + c.Ext(), c, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", "", err
		}
	}
	return "", "", fmt.Errorf("sample %d: %w", index, os.ErrNotExist)
}

// Indices lists the stored sample indices in ascending order.
func (s *Store) Indices() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, "list samples", err)
	}
	var out []int64
	for _, e := range entries {
		if idx, ok := parseName(e.Name()); ok && !e.IsDir() {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// NextIndex is one past the highest stored index, or 0 for an empty store.
// Gaps left by failed candidates below the highest index are not reused.
func (s *Store) NextIndex() (int64, error) {
	idx, err := s.Indices()
	if err != nil || len(idx) == 0 {
		return 0, err
	}
	return idx[len(idx)-1] + 1, nil
}

func parseName(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return 0, false
	}
	c, ok := compressionOf(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), c.Ext()), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
