/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/clipdeck/internal/auth"
	"github.com/friendsincode/clipdeck/internal/handoff"
	"github.com/friendsincode/clipdeck/internal/telemetry"
)

// handleHandoffTake returns the descriptor under tag exactly once.
func (a *API) handleHandoffTake(w http.ResponseWriter, r *http.Request) {
	if a.handoff == nil {
		writeError(w, http.StatusServiceUnavailable, "handoff_unavailable")
		return
	}
	d, ok, err := a.handoff.TakeOnce(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		if errors.Is(err, handoff.ErrInvalidTag) {
			writeError(w, http.StatusBadRequest, "invalid_tag")
			return
		}
		telemetry.HandoffTotal.WithLabelValues("take", "failed").Inc()
		a.logger.Error().Err(err).Msg("hand-off take failed")
		writeError(w, http.StatusInternalServerError, "handoff_failed")
		return
	}
	if !ok {
		telemetry.HandoffTotal.WithLabelValues("take", "miss").Inc()
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	telemetry.HandoffTotal.WithLabelValues("take", "ok").Inc()
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"exports": []any{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := a.history.List(r.Context(), auth.Subject(r.Context()), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list exports failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": records})
}
