/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/clipdeck/internal/auth"
	"github.com/friendsincode/clipdeck/internal/editor"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/render"
	"github.com/friendsincode/clipdeck/internal/selection"
)

const (
	defaultTimelineWidth  = 1000
	defaultTimelineHeight = 120
	maxTimelineWidth      = 4096
	maxTimelineHeight     = 1024
)

// limitExceeded reports whether err, or the exhausted body, carries the
// MaxBytesReader limit error. Multipart parsing does not always wrap it.
func limitExceeded(err error, body io.Reader) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	_, err = body.Read(make([]byte, 1))
	return errors.As(err, &maxErr)
}

type upload struct {
	name     string
	mimeType string
	data     []byte
}

// readUpload reads the multipart "file" field within the upload limit.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	if r.ContentLength > a.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if limitExceeded(err, r.Body) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if limitExceeded(err, r.Body) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read_failed")
		return nil, false
	}

	mimeType := header.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	return &upload{name: header.Filename, mimeType: mimeType, data: data}, true
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	s, err := a.sessions.Get(chi.URLParam(r, "id"), auth.Subject(r.Context()))
	if err != nil {
		a.writeEditorError(w, err)
		return nil, false
	}
	return s, true
}

func (a *API) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	up, ok := a.readUpload(w, r)
	if !ok {
		return
	}

	owner := auth.Subject(r.Context())
	s, err := a.sessions.Create(r.Context(), owner)
	if err != nil {
		a.writeEditorError(w, err)
		return
	}

	snap, err := s.Open(r.Context(), up.name, up.mimeType, up.data)
	if err != nil {
		_ = a.sessions.Close(s.ID(), owner)
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleSessionReplaceSource(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	up, ok := a.readUpload(w, r)
	if !ok {
		return
	}
	snap, err := s.Open(r.Context(), up.name, up.mimeType, up.data)
	if err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Close(chi.URLParam(r, "id"), auth.Subject(r.Context())); err != nil {
		a.writeEditorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWaveform(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	env, err := s.Waveform()
	if err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	width := queryInt(r, "width", defaultTimelineWidth, 1, maxTimelineWidth)
	height := queryInt(r, "height", defaultTimelineHeight, 1, maxTimelineHeight)

	frame, err := s.Frame()
	if err != nil {
		a.writeEditorError(w, err)
		return
	}

	surface := render.NewImageSurface(width, height)
	render.Render(surface, frame, render.DefaultStyle)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := surface.EncodePNG(w); err != nil {
		a.logger.Warn().Err(err).Msg("timeline encode failed")
	}
}

type selectionRequest struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type selectionResponse struct {
	Selection selection.Selection `json:"selection"`
	StartText string              `json:"start_text"`
	EndText   string              `json:"end_text"`
}

func (a *API) handleSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var err error
	switch {
	case req.Start != nil && req.End != nil:
		_, err = s.SetRange(*req.Start, *req.End)
	case req.Start != nil:
		_, err = s.CommitStartText(*req.Start)
	case req.End != nil:
		_, err = s.CommitEndText(*req.End)
	default:
		writeError(w, http.StatusBadRequest, "start_or_end_required")
		return
	}
	if err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionBody(s.Snapshot()))
}

type nudgeRequest struct {
	Edge  selection.Edge `json:"edge"`
	Delta float64        `json:"delta"`
}

func (a *API) handleNudge(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req nudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Edge != selection.EdgeStart && req.Edge != selection.EdgeEnd {
		writeError(w, http.StatusBadRequest, "invalid_edge")
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	if _, err := s.Nudge(req.Edge, req.Delta); err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionBody(s.Snapshot()))
}

func (a *API) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if _, err := s.SelectAll(); err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionBody(s.Snapshot()))
}

func selectionBody(snap editor.Snapshot) selectionResponse {
	return selectionResponse{Selection: snap.Selection, StartText: snap.StartText, EndText: snap.EndText}
}

type pointerRequest struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Input      string  `json:"input"`
	TrackWidth float64 `json:"track_width"`
}

func (a *API) handlePointer(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req pointerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	ev := selection.PointerEvent{X: req.X, Input: selection.InputMouse}
	switch req.Input {
	case "", "mouse":
	case "touch":
		ev.Input = selection.InputTouch
	default:
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if req.TrackWidth > 0 {
		s.SetTrackWidth(req.TrackWidth)
	}

	snap, err := s.Pointer(editor.PointerAction(req.Type), ev)
	if err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleKey(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	consumed := s.Key(r.Context(), req.Key)
	snap := s.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"consumed": consumed, "playing": snap.Playing})
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	playing, err := s.Toggle(r.Context())
	if err != nil {
		a.writeEditorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playing": playing, "position": s.Snapshot().Position})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}

	if tag := r.URL.Query().Get("handoff"); tag != "" {
		role, err := handoff.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role")
			return
		}
		d, err := s.HandOff(r.Context(), tag, role)
		if err != nil {
			a.writeEditorError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"tag":       tag,
			"name":      d.Name,
			"mime_type": d.MIMEType,
			"size":      d.Size,
			"role":      d.Role,
		})
		return
	}

	out, err := s.Export(r.Context())
	if err != nil {
		a.writeEditorError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.Artifact.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(out.Artifact.Size()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Artifact.Name}))
	w.Header().Set("X-Clipdeck-Export-Path", out.Path)
	if out.StorageKey != "" {
		w.Header().Set("X-Clipdeck-Storage-Key", out.StorageKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Artifact.Data)
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
