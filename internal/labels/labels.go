// Package labels normalizes the six synthesis measurements of a design into
// the [-1, 1] label vector of a training sample, and back.
package labels

import "math"

// Sentinel is the label of a metric whose dataset maximum is zero.
const Sentinel = -1

// latencyShift keeps the log transform of small latencies away from zero.
const latencyShift = 600

// Measurements are the raw synthesis results of one design.
type Measurements struct {
	LUT     float64
	FF      float64
	BRAM    float64
	DSP     float64
	Clock   float64
	Latency float64
}

// Maxima are the dataset-wide maxima of each measurement. A metric with no
// recorded value is zero.
type Maxima struct {
	LUTs    float64 `msgpack:"LUTs"`
	FFs     float64 `msgpack:"FFs"`
	BRAMs   float64 `msgpack:"BRAMs"`
	DSPs    float64 `msgpack:"DSPs"`
	Clock   float64 `msgpack:"clock"`
	Latency float64 `msgpack:"latency"`
}

// Vector is the label order used by the models: LUT, FF, BRAM, DSP, clock
// period, latency.
type Vector [6]float32

// Scale maps [0, max] linearly onto [-1, 1]. A zero max yields Sentinel.
func Scale(v, max float64) float64 {
	if max == 0 {
		return Sentinel
	}
	return v/max*2 - 1
}

// LatencyTransform compresses the dynamic range of a latency.
func LatencyTransform(latency float64) float64 {
	return math.Log2(latency+latencyShift) - math.Log2(latencyShift)
}

// Normalize computes the label vector of m. The maximum of every metric maps
// to +1; latency is compared after LatencyTransform on both sides.
func Normalize(m Measurements, max Maxima) Vector {
	latency := float64(Sentinel)
	if max.Latency != 0 {
		latency = Scale(LatencyTransform(m.Latency), LatencyTransform(max.Latency))
	}
	return Vector{
		float32(Scale(m.LUT, max.LUTs)),
		float32(Scale(m.FF, max.FFs)),
		float32(Scale(m.BRAM, max.BRAMs)),
		float32(Scale(m.DSP, max.DSPs)),
		float32(Scale(m.Clock, max.Clock)),
		float32(latency),
	}
}

// Denormalize inverts Normalize. Metrics with a zero maximum come back as 0.
func Denormalize(v Vector, max Maxima) Measurements {
	unscale := func(y float32, max float64) float64 {
		return (float64(y) + 1) / 2 * max
	}
	var latency float64
	if max.Latency != 0 {
		t := unscale(v[5], LatencyTransform(max.Latency))
		latency = latencyShift*math.Exp2(t) - latencyShift
	}
	return Measurements{
		LUT:     unscale(v[0], max.LUTs),
		FF:      unscale(v[1], max.FFs),
		BRAM:    unscale(v[2], max.BRAMs),
		DSP:     unscale(v[3], max.DSPs),
		Clock:   unscale(v[4], max.Clock),
		Latency: latency,
	}
}
