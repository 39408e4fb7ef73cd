/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notify carries user-facing notices (toasts) out of the editor.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/rs/zerolog"
)

// Level is the notice severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice codes.
const (
	CodeInvalidFileType           = "invalid_file_type"
	CodeUnsupportedAudioExtension = "unsupported_audio_extension"
	CodeMediaUnreadable           = "media_unreadable"
	CodeAudioDecodeFailed         = "audio_decode_failed"
	CodeNoAudioTrack              = "no_audio_track"
	CodePlaybackNoAudio           = "playback_no_audio"
	CodeExportSucceeded           = "export_succeeded"
	CodeExportFailed              = "export_failed"
	CodeSignInRequired            = "sign_in_required"
	CodeHandoffReady              = "handoff_ready"
)

var messages = map[string]string{
	CodeInvalidFileType:           "Please choose an audio or video file.",
	CodeUnsupportedAudioExtension: "This audio format is not supported. Use mp3, wav, m4a, ogg or flac.",
	CodeMediaUnreadable:           "Could not read this file.",
	CodeAudioDecodeFailed:         "Could not decode the audio in this file.",
	CodeNoAudioTrack:              "This video has no audio track.",
	CodePlaybackNoAudio:           "Nothing to play: this file has no audio.",
	CodeExportSucceeded:           "Trimmed file is ready.",
	CodeExportFailed:              "Export failed. Please try again.",
	CodeSignInRequired:            "Please sign in to continue.",
	CodeHandoffReady:              "Trimmed file sent.",
}

var levels = map[string]Level{
	CodeInvalidFileType:           LevelError,
	CodeUnsupportedAudioExtension: LevelError,
	CodeMediaUnreadable:           LevelError,
	CodeAudioDecodeFailed:         LevelError,
	CodeNoAudioTrack:              LevelInfo,
	CodePlaybackNoAudio:           LevelInfo,
	CodeExportSucceeded:           LevelSuccess,
	CodeExportFailed:              LevelError,
	CodeSignInRequired:            LevelInfo,
	CodeHandoffReady:              LevelSuccess,
}

// Notice is one user-facing message.
type Notice struct {
	Code      string    `json:"code"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// New builds a notice with the default message and level for code.
func New(sessionID, code string) Notice {
	level, ok := levels[code]
	if !ok {
		level = LevelInfo
	}
	return Notice{
		Code:      code,
		Level:     level,
		Message:   messages[code],
		SessionID: sessionID,
		At:        time.Now().UTC(),
	}
}

// Payload converts the notice to an event payload.
func (n Notice) Payload() events.Payload {
	return events.Payload{
		"code":       n.Code,
		"level":      string(n.Level),
		"message":    n.Message,
		"session_id": n.SessionID,
		"at":         n.At.Format(time.RFC3339Nano),
	}
}

// Notifier delivers notices. Implementations must not block the caller for
// long; notices are fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice.
var Discard Notifier = Func(func(context.Context, Notice) {})

// BusNotifier publishes notices as events.
type BusNotifier struct {
	pub    events.Publisher
	logger zerolog.Logger
}

// NewBusNotifier creates a notifier publishing EventNotice to pub.
func NewBusNotifier(pub events.Publisher, logger zerolog.Logger) *BusNotifier {
	return &BusNotifier{pub: pub, logger: logger.With().Str("component", "notify").Logger()}
}

// Notify publishes n.
func (b *BusNotifier) Notify(_ context.Context, n Notice) {
	b.logger.Debug().Str("code", n.Code).Str("session", n.SessionID).Msg("notice")
	b.pub.Publish(events.EventNotice, n.Payload())
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Codes returns the recorded codes in order.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, len(r.notices))
	for i, n := range r.notices {
		codes[i] = n.Code
	}
	return codes
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}
