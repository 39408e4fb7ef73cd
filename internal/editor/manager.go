/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package editor

import (
	"context"
	"sync"

	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager tracks the live sessions of the process.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager handing cfg to every session.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new empty session for owner. Creating a session needs
// the same sign-in as picking a file.
func (m *Manager) Create(ctx context.Context, owner string) (*Session, error) {
	if !m.cfg.Auth.IsAuthenticated(ctx) {
		m.cfg.Auth.RequestSignIn(ctx)
		return nil, ErrSignInRequired
	}

	s := NewSession(uuid.NewString(), owner, m.cfg, m.logger)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	telemetry.SessionsActive.Set(float64(n))
	return s, nil
}

// Get returns the session with id. Sessions owned by someone else are
// reported as not found.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || (s.Owner() != "" && s.Owner() != owner) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets the session.
func (m *Manager) Close(id, owner string) error {
	s, err := m.Get(id, owner)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	s.Close()
	telemetry.SessionsActive.Set(float64(n))
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	telemetry.SessionsActive.Set(0)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
