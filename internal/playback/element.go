/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"math"
	"sync"
	"time"
)

// Element is the media element playback drives.
type Element interface {
	CurrentTime() float64
	SetCurrentTime(t float64)
	Play() error
	Pause()
	Paused() bool
}

// VirtualElement is a clock-driven Element for headless sessions. Time only
// advances inside Advance or Run.
type VirtualElement struct {
	mu       sync.Mutex
	current  float64
	duration float64
	paused   bool
}

// NewVirtualElement creates a paused element for a source of duration seconds.
func NewVirtualElement(duration float64) *VirtualElement {
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	return &VirtualElement{duration: duration, paused: true}
}

// CurrentTime returns the playback position.
func (v *VirtualElement) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// SetCurrentTime seeks, clamped to the source.
func (v *VirtualElement) SetCurrentTime(t float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = math.Max(0, math.Min(t, v.duration))
}

// Play starts the clock.
func (v *VirtualElement) Play() error {
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
	return nil
}

// Pause stops the clock.
func (v *VirtualElement) Pause() {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
}

// Paused reports whether the clock is stopped.
func (v *VirtualElement) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// Advance moves the clock forward by d if playing. Reaching the end of the
// source pauses the element. It reports whether time moved.
func (v *VirtualElement) Advance(d time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return false
	}
	v.current += d.Seconds()
	if v.current >= v.duration {
		v.current = v.duration
		v.paused = true
	}
	return true
}

// Run advances the clock every tick until ctx is done, calling onUpdate after
// each step in which time moved.
func (v *VirtualElement) Run(ctx context.Context, tick time.Duration, onUpdate func()) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if v.Advance(elapsed) && onUpdate != nil {
				onUpdate()
			}
		}
	}
}
