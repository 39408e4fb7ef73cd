/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import "math"

// Reduce downsamples samples into n buckets of mean absolute amplitude.
// Every bucket covers floor(len/n) samples except the last, which also takes
// the remainder. With fewer samples than buckets each bucket takes the
// sample under it, so short sources spread across the whole envelope. The
// result always has n entries.
func Reduce(samples []float32, n int) []float32 {
	if n <= 0 {
		return []float32{}
	}
	peaks := make([]float32, n)
	if len(samples) == 0 {
		return peaks
	}

	blockSize := len(samples) / n
	if blockSize == 0 {
		for i := range peaks {
			peaks[i] = absSample(samples[i*len(samples)/n])
		}
		return peaks
	}
	for i := 0; i < n; i++ {
		from := i * blockSize
		to := from + blockSize
		if i == n-1 {
			to = len(samples)
		}
		if to <= from {
			continue
		}

		var sum float64
		for _, s := range samples[from:to] {
			sum += float64(absSample(s))
		}
		peaks[i] = float32(sum / float64(to-from))
	}
	return peaks
}

// absSample is |s|, with NaN and infinities counted as silence.
func absSample(s float32) float32 {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return float32(math.Abs(v))
}

// Normalize scales peaks so the loudest bucket is 1. Silent input is
// returned unchanged.
func Normalize(peaks []float32) []float32 {
	var max float32
	for _, p := range peaks {
		if p > max {
			max = p
		}
	}
	out := make([]float32, len(peaks))
	if max == 0 {
		copy(out, peaks)
		return out
	}
	for i, p := range peaks {
		out[i] = p / max
	}
	return out
}
