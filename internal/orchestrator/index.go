package orchestrator

// GlobalIndex is the dataset-wide index of the candidate at position in a
// kernel whose samples start at base. It does not depend on which worker
// processed the candidate.
func GlobalIndex(base int64, position int) int64 {
	return base + int64(position)
}

// BaseOffsets returns the first global index of each kernel when kernels
// with the given candidate counts are processed in order from start.
func BaseOffsets(start int64, counts []int) []int64 {
	out := make([]int64, len(counts))
	base := start
	for i, n := range counts {
		out[i] = base
		base += int64(n)
	}
	return out
}

// Stride lists the candidate positions worker w of a pool of p handles out
// of n candidates: w, w+p, w+2p, ...
func Stride(w, p, n int) []int {
	if p <= 0 || w < 0 || w >= p {
		return nil
	}
	var out []int
	for pos := w; pos < n; pos += p {
		out = append(out, pos)
	}
	return out
}
