/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package editor ties probing, waveform analysis, selection, playback and
// export into per-user editing sessions.
package editor

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/clipdeck/internal/auth"
	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/friendsincode/clipdeck/internal/export"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/history"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/notify"
	"github.com/friendsincode/clipdeck/internal/playback"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/friendsincode/clipdeck/internal/storage"
	"github.com/friendsincode/clipdeck/internal/waveform"
)

// DefaultTrackWidth is the track width in pixels until a client reports its own.
const DefaultTrackWidth = 1000

var (
	// ErrSignInRequired indicates the action was aborted for sign-in.
	ErrSignInRequired = errors.New("sign in required")

	// ErrStale indicates a result belonged to a source that has since been replaced.
	ErrStale = errors.New("result superseded by a newer source")

	// ErrNoSource indicates no source is loaded.
	ErrNoSource = errors.New("no source loaded")

	// ErrSessionNotFound indicates the session id is unknown to the manager.
	ErrSessionNotFound = errors.New("editor session not found")

	// ErrSessionClosed indicates the session was closed.
	ErrSessionClosed = errors.New("editor session closed")

	// ErrHandoffUnavailable indicates no hand-off channel is configured.
	ErrHandoffUnavailable = errors.New("hand-off channel not configured")

	// ErrInvalidPointerAction indicates an unknown pointer action.
	ErrInvalidPointerAction = errors.New("invalid pointer action")
)

// Exporter runs the trim export. *export.Pipeline satisfies it.
type Exporter interface {
	Run(ctx context.Context, src *media.Source, sel selection.Selection, duration float64, hasAudio bool) (*export.Result, error)
}

// ElementFactory builds the media element for a freshly opened source.
type ElementFactory func(duration float64) playback.Element

// Config holds the collaborators shared by every session.
type Config struct {
	Prober       probe.Prober
	ProbeTimeout time.Duration
	Analyzer     waveform.Source
	Exporter     Exporter

	// Optional collaborators.
	Handoff  handoff.Channel
	Store    storage.ObjectStore
	History  *history.Store
	Auth     auth.Authenticator
	Notifier notify.Notifier
	Events   events.Publisher

	TrackWidth float64
	NewElement ElementFactory
	// ClockTick drives virtual playback in the background. Zero disables it.
	ClockTick time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = probe.DefaultTimeout
	}
	if c.Auth == nil {
		c.Auth = auth.AllowAll{}
	}
	if c.Notifier == nil {
		c.Notifier = notify.Discard
	}
	if c.TrackWidth <= 0 {
		c.TrackWidth = DefaultTrackWidth
	}
	if c.NewElement == nil {
		c.NewElement = func(d float64) playback.Element { return playback.NewVirtualElement(d) }
	}
	return c
}

// PointerAction names a pointer event phase.
type PointerAction string

const (
	PointerDown   PointerAction = "down"
	PointerMove   PointerAction = "move"
	PointerUp     PointerAction = "up"
	PointerCancel PointerAction = "cancel"
)

// SourceInfo describes the loaded source.
type SourceInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	MIMEType string     `json:"mime_type"`
	Kind     media.Kind `json:"kind"`
	Size     int        `json:"size"`
}

// Snapshot is the renderable state of a session.
type Snapshot struct {
	ID         string              `json:"id"`
	Generation uint64              `json:"generation"`
	Source     *SourceInfo         `json:"source,omitempty"`
	Probe      *probe.Result       `json:"probe,omitempty"`
	Duration   float64             `json:"duration"`
	HasAudio   bool                `json:"has_audio"`
	Selection  selection.Selection `json:"selection"`
	StartText  string              `json:"start_text"`
	EndText    string              `json:"end_text"`
	Playing    bool                `json:"playing"`
	Position   float64             `json:"position"`
	Dragging   bool                `json:"dragging"`
	DragMode   string              `json:"drag_mode"`
	TrackWidth float64             `json:"track_width"`
}

// Outcome is a finished export as seen by the session owner.
type Outcome struct {
	Artifact   *media.Artifact
	Path       string
	Elapsed    time.Duration
	StorageKey string
	URL        string
	RecordID   string
}
