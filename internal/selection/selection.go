/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selection implements the trim range and the pointer/touch state
// machine that edits it over a waveform track.
package selection

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Selection is the chosen trim range in seconds.
type Selection struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Len returns End - Start.
func (s Selection) Len() float64 {
	return s.End - s.Start
}

// Contains reports whether t lies within the closed range.
func (s Selection) Contains(t float64) bool {
	return t >= s.Start && t <= s.End
}

// IsFull reports whether the selection spans [0, duration].
func (s Selection) IsFull(duration float64) bool {
	return s.Start <= 0 && s.End >= duration
}

// MinGap is the smallest allowed selection length for a source.
func MinGap(duration float64) float64 {
	if !validDuration(duration) {
		return 0
	}
	return math.Min(1, duration)
}

// SnapEpsilon is the distance from 0 or duration within which a dragged
// boundary lands exactly on the extreme.
func SnapEpsilon(duration float64) float64 {
	if !validDuration(duration) {
		return 0
	}
	return math.Min(0.25, duration/200)
}

// FormatClock renders seconds as mm:ss. Minutes are not wrapped into hours.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ParseClock reads "ss", "mm:ss" or "hh:mm:ss" (seconds may be fractional).
// Anything unparsable reads as 0.
func ParseClock(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	for i, part := range parts {
		part = strings.TrimSpace(part)
		last := i == len(parts)-1

		var v float64
		if last {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0
			}
			v = f
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return 0
			}
			v = float64(n)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		total = total*60 + v
	}
	return total
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
