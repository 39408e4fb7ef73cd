/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/friendsincode/clipdeck/internal/notify"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/rs/zerolog"
)

// EndEpsilon is how close to the selection end the playhead must be for a
// play request to restart from the selection start.
const EndEpsilon = 0.05

// KeySpace is the key name that toggles playback.
const KeySpace = "Space"

var (
	// ErrNoAudio is returned when asked to play a source without audio.
	ErrNoAudio = errors.New("playback: source has no audio track")
	// ErrNoSource is returned when nothing is loaded.
	ErrNoSource = errors.New("playback: no source loaded")
)

// Range supplies the selection playback is confined to.
type Range interface {
	Selection() selection.Selection
	Duration() float64
	Dragging() bool
}

// Controller confines one Element to a selection range.
type Controller struct {
	mu       sync.Mutex
	el       Element
	rng      Range
	notifier notify.Notifier
	logger   zerolog.Logger

	sessionID string
	loaded    bool
	hasAudio  bool
}

// NewController binds el to rng.
func NewController(el Element, rng Range, notifier notify.Notifier, logger zerolog.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Controller{
		el:       el,
		rng:      rng,
		notifier: notifier,
		logger:   logger.With().Str("component", "playback").Logger(),
	}
}

// Load records the current source. A change of audio availability while
// playing pauses.
func (c *Controller) Load(sessionID string, hasAudio bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := !c.loaded || c.hasAudio != hasAudio || c.sessionID != sessionID
	c.sessionID = sessionID
	c.loaded = true
	c.hasAudio = hasAudio
	if changed {
		c.forcePauseLocked("source changed")
	}
}

// Unload forgets the source and pauses.
func (c *Controller) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.hasAudio = false
	c.forcePauseLocked("source closed")
}

// RangeChanged pauses when playing. Suitable as a selection change hook.
func (c *Controller) RangeChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forcePauseLocked("selection changed")
}

// Playing reports whether the element is running.
func (c *Controller) Playing() bool {
	return !c.el.Paused()
}

// Toggle plays or pauses. It reports whether playback is running afterwards.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.el.Paused() {
		c.el.Pause()
		return false, nil
	}
	if !c.loaded {
		return false, ErrNoSource
	}
	if !c.hasAudio {
		c.notifier.Notify(ctx, notify.New(c.sessionID, notify.CodePlaybackNoAudio))
		return false, ErrNoAudio
	}

	sel := c.rng.Selection()
	t := c.el.CurrentTime()
	switch {
	// Past the end counts as finished, so play restarts from the start.
	case math.Abs(t-sel.End) <= EndEpsilon || t >= sel.End:
		c.el.SetCurrentTime(sel.Start)
	case t < sel.Start:
		c.el.SetCurrentTime(sel.Start)
	}

	if err := c.el.Play(); err != nil {
		return false, fmt.Errorf("play: %w", err)
	}
	return true, nil
}

// OnTimeUpdate pins the element to the selection end once it gets there.
func (c *Controller) OnTimeUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.el.Paused() {
		return
	}
	end := c.rng.Selection().End
	if c.el.CurrentTime() >= end {
		c.el.Pause()
		c.el.SetCurrentTime(end)
	}
}

// HandleKey toggles playback on space when a source with a known duration is
// loaded and no drag is in progress. It reports whether the key was consumed.
func (c *Controller) HandleKey(ctx context.Context, key string) bool {
	if key != KeySpace && key != " " {
		return false
	}
	c.mu.Lock()
	ready := c.loaded && c.rng.Duration() > 0 && !c.rng.Dragging()
	c.mu.Unlock()
	if !ready {
		return false
	}
	if _, err := c.Toggle(ctx); err != nil && !errors.Is(err, ErrNoAudio) {
		c.logger.Debug().Err(err).Msg("toggle from key failed")
	}
	return true
}

// Position implements selection.Playhead.
func (c *Controller) Position() float64 {
	return c.el.CurrentTime()
}

// Seek implements selection.Playhead.
func (c *Controller) Seek(t float64) {
	c.el.SetCurrentTime(t)
}

func (c *Controller) forcePauseLocked(reason string) {
	if c.el.Paused() {
		return
	}
	c.el.Pause()
	c.logger.Debug().Str("reason", reason).Msg("playback paused")
}
