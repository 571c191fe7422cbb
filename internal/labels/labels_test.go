package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var maxima = Maxima{LUTs: 1000, FFs: 2000, BRAMs: 0, DSPs: 64, Clock: 10, Latency: 100000}

func TestNormalize_Boundaries(t *testing.T) {
	top := Normalize(Measurements{LUT: 1000, FF: 2000, BRAM: 0, DSP: 64, Clock: 10, Latency: 100000}, maxima)
	assert.Equal(t, Vector{1, 1, Sentinel, 1, 1, 1}, top)

	bottom := Normalize(Measurements{}, maxima)
	assert.Equal(t, Vector{-1, -1, Sentinel, -1, -1, -1}, bottom)
}

func TestNormalize_Midpoints(t *testing.T) {
	v := Normalize(Measurements{LUT: 500, FF: 1500, DSP: 16, Clock: 5, Latency: 1200}, maxima)

	assert.InDelta(t, 0, v[0], 1e-6)
	assert.InDelta(t, 0.5, v[1], 1e-6)
	assert.InDelta(t, -0.5, v[3], 1e-6)
	assert.InDelta(t, 0, v[4], 1e-6)

	// log2(1800/600) / log2(100600/600) * 2 - 1
	assert.InDelta(t, -0.5710, v[5], 1e-3)
}

func TestNormalize_AllZeroMaxima(t *testing.T) {
	v := Normalize(Measurements{LUT: 3, Latency: 7}, Maxima{})
	assert.Equal(t, Vector{Sentinel, Sentinel, Sentinel, Sentinel, Sentinel, Sentinel}, v)
}

func TestDenormalize(t *testing.T) {
	m := Measurements{LUT: 250, FF: 1999, BRAM: 4, DSP: 3, Clock: 8.5, Latency: 4321}
	got := Denormalize(Normalize(m, maxima), maxima)

	assert.InDelta(t, m.LUT, got.LUT, 1e-3)
	assert.InDelta(t, m.FF, got.FF, 1e-3)
	assert.Equal(t, 0.0, got.BRAM)
	assert.InDelta(t, m.DSP, got.DSP, 1e-4)
	assert.InDelta(t, m.Clock, got.Clock, 1e-5)
	assert.InDelta(t, m.Latency, got.Latency, 0.5)
}

func TestScale(t *testing.T) {
	assert.Equal(t, float64(Sentinel), Scale(5, 0))
	assert.Equal(t, 0.0, Scale(5, 10))
}
