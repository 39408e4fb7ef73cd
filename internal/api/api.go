/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/clipdeck/internal/auth"
	"github.com/friendsincode/clipdeck/internal/editor"
	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/friendsincode/clipdeck/internal/export"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/history"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/playback"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/version"
	"github.com/friendsincode/clipdeck/internal/waveform"
)

// DefaultMaxUploadBytes bounds multipart uploads when no limit is configured.
const DefaultMaxUploadBytes = 512 << 20

// EventSource is a bus the events socket can subscribe to.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Options carries the optional collaborators of the API.
type Options struct {
	Handoff        handoff.Channel
	History        *history.Store
	Events         EventSource
	Auth           func(http.Handler) http.Handler
	MaxUploadBytes int64
}

// API exposes HTTP handlers.
type API struct {
	sessions       *editor.Manager
	handoff        handoff.Channel
	history        *history.Store
	bus            EventSource
	auth           func(http.Handler) http.Handler
	maxUploadBytes int64
	logger         zerolog.Logger
}

// New creates the API router wrapper.
func New(sessions *editor.Manager, opts Options, logger zerolog.Logger) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Auth == nil {
		opts.Auth = auth.Local("local")
	}
	return &API{
		sessions:       sessions,
		handoff:        opts.Handoff,
		history:        opts.History,
		bus:            opts.Events,
		auth:           opts.Auth,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(a.auth)

			pr.Route("/sessions", func(r chi.Router) {
				r.Post("/", a.handleSessionCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", a.handleSessionGet)
					r.Delete("/", a.handleSessionDelete)
					r.Post("/source", a.handleSessionReplaceSource)
					r.Get("/waveform", a.handleWaveform)
					r.Get("/timeline.png", a.handleTimeline)
					r.Put("/selection", a.handleSelection)
					r.Post("/selection/nudge", a.handleNudge)
					r.Post("/select-all", a.handleSelectAll)
					r.Post("/pointer", a.handlePointer)
					r.Post("/keys", a.handleKey)
					r.Post("/playback/toggle", a.handleToggle)
					r.Post("/export", a.handleExport)
				})
			})

			pr.Get("/handoff/{tag}", a.handleHandoffTake)
			pr.Get("/exports", a.handleExportHistory)
			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"sessions": a.sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeEditorError maps domain errors to status codes and error codes.
func (a *API) writeEditorError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, editor.ErrSignInRequired):
		auth.SignInRequired(w)
		return
	case errors.Is(err, editor.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, editor.ErrSessionClosed):
		status, code = http.StatusGone, "session_closed"
	case errors.Is(err, editor.ErrStale):
		status, code = http.StatusConflict, "stale"
	case errors.Is(err, editor.ErrNoSource), errors.Is(err, playback.ErrNoSource):
		status, code = http.StatusConflict, "no_source"
	case errors.Is(err, playback.ErrNoAudio):
		status, code = http.StatusConflict, "playback_no_audio"
	case errors.Is(err, editor.ErrHandoffUnavailable):
		status, code = http.StatusServiceUnavailable, "handoff_unavailable"
	case errors.Is(err, editor.ErrInvalidPointerAction):
		status, code = http.StatusBadRequest, "invalid_pointer_action"
	case errors.Is(err, handoff.ErrInvalidTag):
		status, code = http.StatusBadRequest, "invalid_tag"
	case errors.Is(err, media.ErrUnsupportedAudioExtension):
		status, code = http.StatusUnsupportedMediaType, "unsupported_audio_extension"
	case errors.Is(err, media.ErrInvalidFileType):
		status, code = http.StatusUnsupportedMediaType, "invalid_file_type"
	case errors.Is(err, media.ErrEmptySource):
		status, code = http.StatusBadRequest, "empty_file"
	case errors.Is(err, probe.ErrUnreadableMedia):
		status, code = http.StatusUnprocessableEntity, "media_unreadable"
	case errors.Is(err, waveform.ErrAudioDecodeFailure):
		status, code = http.StatusUnprocessableEntity, "audio_decode_failed"
	case errors.Is(err, export.ErrExportFailed):
		status, code = http.StatusBadGateway, "export_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "cancelled"
	default:
		a.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, code)
}
