/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/clipdeck/internal/events"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/models"
	"github.com/friendsincode/clipdeck/internal/notify"
	"github.com/friendsincode/clipdeck/internal/playback"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/render"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/friendsincode/clipdeck/internal/storage"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/friendsincode/clipdeck/internal/waveform"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type clockRunner interface {
	Run(ctx context.Context, tick time.Duration, onUpdate func())
}

// Session edits one source at a time. Opening a new source bumps the
// generation; async results computed for an older generation are dropped.
type Session struct {
	id     string
	owner  string
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	generation uint64
	closed     bool
	source     *media.Source
	probe      probe.Result
	envelope   waveform.Envelope
	hasAudio   bool
	machine    *selection.Machine
	element    playback.Element
	player     *playback.Controller
	stopClock  context.CancelFunc
}

// NewSession creates an empty session owned by owner.
func NewSession(id, owner string, cfg Config, logger zerolog.Logger) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:      id,
		owner:   owner,
		cfg:     cfg,
		logger:  logger.With().Str("component", "editor").Str("session", id).Logger(),
		machine: selection.New(0, cfg.TrackWidth),
	}
	s.machine.OnChange(s.selectionChanged)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the subject that created the session.
func (s *Session) Owner() string { return s.owner }

// Open loads a new source: auth check, type validation, probe, selection
// reset to [0, duration], then waveform analysis.
func (s *Session) Open(ctx context.Context, name, mimeType string, data []byte) (Snapshot, error) {
	if err := s.requireAuth(ctx); err != nil {
		return Snapshot{}, err
	}

	src, err := media.NewSource(uuid.NewString(), name, mimeType, data)
	if err != nil {
		s.notify(ctx, rejectCode(err))
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	s.generation++
	gen := s.generation
	s.discardLocked()
	s.mu.Unlock()

	s.logger.Info().Str("source", src.Name).Str("kind", string(src.Kind)).Int("bytes", src.Size()).Msg("opening source")

	res, err := s.cfg.Prober.Probe(ctx, src, s.cfg.ProbeTimeout)
	if err != nil {
		if !s.current(gen) {
			return Snapshot{}, ErrStale
		}
		s.logger.Warn().Err(err).Str("source", src.Name).Msg("probe failed")
		s.notify(ctx, notify.CodeMediaUnreadable)
		return Snapshot{}, err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return Snapshot{}, ErrStale
	}
	s.source = src
	s.probe = res
	s.machine.Reset(res.Duration)
	s.mu.Unlock()

	env, err := s.cfg.Analyzer.Analyze(ctx, src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return Snapshot{}, ErrStale
	}
	if err != nil {
		s.discardLocked()
		s.logger.Warn().Err(err).Str("source", src.Name).Msg("waveform analysis failed")
		if errors.Is(err, waveform.ErrAudioDecodeFailure) {
			s.notify(ctx, notify.CodeAudioDecodeFailed)
		}
		return Snapshot{}, err
	}

	s.envelope = env
	s.hasAudio = env.HasAudioTrack
	if !s.hasAudio {
		s.notify(ctx, notify.CodeNoAudioTrack)
	}

	s.element = s.cfg.NewElement(res.Duration)
	s.player = playback.NewController(s.element, s.machine, s.cfg.Notifier, s.logger)
	s.player.Load(s.id, s.hasAudio)
	s.machine.SetPlayhead(s.player)
	s.startClockLocked()

	s.publish(events.EventSessionOpened, events.Payload{
		"source":    src.Name,
		"kind":      string(src.Kind),
		"duration":  res.Duration,
		"has_audio": s.hasAudio,
	})
	return s.snapshotLocked(), nil
}

// Export trims the current selection. Failure leaves the session unchanged.
func (s *Session) Export(ctx context.Context) (*Outcome, error) {
	return s.export(ctx, "")
}

// HandOff exports and places the artifact in the hand-off channel under tag.
func (s *Session) HandOff(ctx context.Context, tag string, role handoff.Role) (*handoff.Descriptor, error) {
	if s.cfg.Handoff == nil {
		return nil, ErrHandoffUnavailable
	}
	if err := handoff.ValidateTag(tag); err != nil {
		return nil, err
	}

	out, err := s.export(ctx, tag)
	if err != nil {
		return nil, err
	}

	d := handoff.FromArtifact(out.Artifact, role)
	if err := s.cfg.Handoff.Put(ctx, tag, d); err != nil {
		telemetry.HandoffTotal.WithLabelValues("put", "failed").Inc()
		return nil, fmt.Errorf("hand off: %w", err)
	}
	telemetry.HandoffTotal.WithLabelValues("put", "ok").Inc()
	s.notify(ctx, notify.CodeHandoffReady)
	return d, nil
}

func (s *Session) export(ctx context.Context, tag string) (*Outcome, error) {
	if err := s.requireAuth(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		return nil, ErrNoSource
	}
	gen := s.generation
	src := s.source
	sel := s.machine.Selection()
	duration := s.machine.Duration()
	hasAudio := s.hasAudio
	s.mu.Unlock()

	res, err := s.cfg.Exporter.Run(ctx, src, sel, duration, hasAudio)
	if !s.current(gen) {
		return nil, ErrStale
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("source", src.Name).Msg("export failed")
		s.notify(ctx, notify.CodeExportFailed)
		return nil, err
	}

	out := &Outcome{Artifact: res.Artifact, Path: res.Path, Elapsed: res.Elapsed}
	s.persist(ctx, src, sel, tag, out)
	s.notify(ctx, notify.CodeExportSucceeded)
	s.publish(events.EventExportCompleted, events.Payload{
		"output":  out.Artifact.Name,
		"mime":    out.Artifact.MIMEType,
		"bytes":   out.Artifact.Size(),
		"path":    out.Path,
		"start":   sel.Start,
		"end":     sel.End,
		"storage": out.StorageKey,
	})
	return out, nil
}

// persist stores the artifact and the history record. Failures are logged;
// the caller already has the artifact.
func (s *Session) persist(ctx context.Context, src *media.Source, sel selection.Selection, tag string, out *Outcome) {
	recordID := uuid.NewString()
	if s.cfg.Store != nil {
		key := storage.ArtifactKey(recordID, out.Artifact.Name, time.Now())
		if err := s.cfg.Store.Put(ctx, key, out.Artifact.Data, out.Artifact.MIMEType); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to store artifact")
		} else {
			out.StorageKey = key
			out.URL = s.cfg.Store.URL(key)
		}
	}
	if s.cfg.History != nil {
		rec := &models.ExportRecord{
			ID:         recordID,
			SessionID:  s.id,
			Subject:    s.owner,
			SourceName: src.Name,
			SourceKind: string(src.Kind),
			OutputName: out.Artifact.Name,
			MIMEType:   out.Artifact.MIMEType,
			Path:       out.Path,
			Start:      sel.Start,
			End:        sel.End,
			Bytes:      int64(out.Artifact.Size()),
			StorageKey: out.StorageKey,
			HandoffTag: tag,
			ElapsedMS:  out.Elapsed.Milliseconds(),
		}
		if err := s.cfg.History.Record(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record export")
		} else {
			out.RecordID = rec.ID
		}
	}
}

// Close releases the source and pauses playback.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.discardLocked()
	s.publish(events.EventSessionClosed, events.Payload{})
}

// Pointer feeds one pointer event to the selection machine.
func (s *Session) Pointer(action PointerAction, ev selection.PointerEvent) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch action {
	case PointerDown:
		s.machine.Down(ev)
	case PointerMove:
		s.machine.Move(ev)
	case PointerUp:
		s.machine.Up(ev)
	case PointerCancel:
		s.machine.Cancel()
	default:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidPointerAction, action)
	}
	return s.snapshotLocked(), nil
}

// SetTrackWidth updates the rendered track width used for pointer mapping.
func (s *Session) SetTrackWidth(width float64) {
	s.mu.Lock()
	s.machine.SetWidth(width)
	s.mu.Unlock()
}

// CommitStartText applies a typed start time and returns the field text.
func (s *Session) CommitStartText(text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return "", ErrNoSource
	}
	return s.machine.CommitStartText(text), nil
}

// CommitEndText applies a typed end time and returns the field text.
func (s *Session) CommitEndText(text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return "", ErrNoSource
	}
	return s.machine.CommitEndText(text), nil
}

// SetRange applies both typed bounds at once.
func (s *Session) SetRange(startText, endText string) (selection.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return selection.Selection{}, ErrNoSource
	}
	return s.machine.Set(selection.ParseClock(startText), selection.ParseClock(endText)), nil
}

// Nudge steps one edge by delta seconds.
func (s *Session) Nudge(edge selection.Edge, delta float64) (selection.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return selection.Selection{}, ErrNoSource
	}
	if edge == selection.EdgeEnd {
		return s.machine.NudgeEnd(delta), nil
	}
	return s.machine.NudgeStart(delta), nil
}

// SelectAll resets the selection to the whole source.
func (s *Session) SelectAll() (selection.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return selection.Selection{}, ErrNoSource
	}
	return s.machine.SelectAll(), nil
}

// Toggle plays or pauses within the selection.
func (s *Session) Toggle(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return false, playback.ErrNoSource
	}
	playing, err := s.player.Toggle(ctx)
	if err == nil {
		s.publish(events.EventPlayback, events.Payload{"playing": playing, "position": s.element.CurrentTime()})
	}
	return playing, err
}

// Key handles a keyboard shortcut. It reports whether the key was consumed.
func (s *Session) Key(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return false
	}
	return s.player.HandleKey(ctx, key)
}

// Tick advances playback bookkeeping after the element moved.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.OnTimeUpdate()
	}
}

// Waveform returns the envelope of the current source.
func (s *Session) Waveform() (waveform.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return waveform.Envelope{}, ErrNoSource
	}
	return s.envelope, nil
}

// Frame returns the timeline state for rendering.
func (s *Session) Frame() (render.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return render.Frame{}, ErrNoSource
	}
	sel := s.machine.Selection()
	f := render.Frame{
		Peaks:    waveform.Normalize(s.envelope.Peaks),
		Duration: s.machine.Duration(),
		Start:    sel.Start,
		End:      sel.End,
	}
	if s.element != nil {
		f.Cursor = s.element.CurrentTime()
		f.HasCursor = true
	}
	return f, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	sel := s.machine.Selection()
	snap := Snapshot{
		ID:         s.id,
		Generation: s.generation,
		Duration:   s.machine.Duration(),
		HasAudio:   s.hasAudio,
		Selection:  sel,
		StartText:  selection.FormatClock(sel.Start),
		EndText:    selection.FormatClock(sel.End),
		Dragging:   s.machine.Dragging(),
		DragMode:   s.machine.Drag().Mode.String(),
		TrackWidth: s.machine.Width(),
	}
	if s.source != nil {
		snap.Source = &SourceInfo{
			ID:       s.source.ID,
			Name:     s.source.Name,
			MIMEType: s.source.MIMEType,
			Kind:     s.source.Kind,
			Size:     s.source.Size(),
		}
		res := s.probe
		snap.Probe = &res
	}
	if s.player != nil {
		snap.Playing = s.player.Playing()
		snap.Position = s.element.CurrentTime()
	}
	return snap
}

// discardLocked drops every piece of state derived from the source.
func (s *Session) discardLocked() {
	if s.stopClock != nil {
		s.stopClock()
		s.stopClock = nil
	}
	if s.player != nil {
		s.player.Unload()
	}
	s.player = nil
	s.element = nil
	s.machine.SetPlayhead(nil)
	s.source = nil
	s.probe = probe.Result{}
	s.envelope = waveform.Envelope{}
	s.hasAudio = false
	s.machine.Reset(0)
}

func (s *Session) startClockLocked() {
	runner, ok := s.element.(clockRunner)
	if !ok || s.cfg.ClockTick <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopClock = cancel
	go runner.Run(ctx, s.cfg.ClockTick, s.Tick)
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Session) requireAuth(ctx context.Context) error {
	if s.cfg.Auth.IsAuthenticated(ctx) {
		return nil
	}
	s.cfg.Auth.RequestSignIn(ctx)
	s.notify(ctx, notify.CodeSignInRequired)
	return ErrSignInRequired
}

// selectionChanged runs under s.mu from the machine.
func (s *Session) selectionChanged(sel selection.Selection) {
	if s.player != nil {
		s.player.RangeChanged()
	}
	s.publish(events.EventSelectionChanged, events.Payload{"start": sel.Start, "end": sel.End})
}

func (s *Session) notify(ctx context.Context, code string) {
	s.cfg.Notifier.Notify(ctx, notify.New(s.id, code))
}

func (s *Session) publish(t events.EventType, payload events.Payload) {
	if s.cfg.Events == nil {
		return
	}
	payload["session_id"] = s.id
	s.cfg.Events.Publish(t, payload)
}

func rejectCode(err error) string {
	switch {
	case errors.Is(err, media.ErrUnsupportedAudioExtension):
		return notify.CodeUnsupportedAudioExtension
	case errors.Is(err, media.ErrInvalidFileType):
		return notify.CodeInvalidFileType
	default:
		return notify.CodeMediaUnreadable
	}
}
