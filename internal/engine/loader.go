/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs an Engine.
type Factory func(ctx context.Context) (Engine, error)

// Loader lazily constructs one Engine and hands it to one caller at a time.
type Loader struct {
	factory Factory

	initMu sync.Mutex
	engine Engine
	closed bool

	slot chan struct{}
}

// NewLoader creates a loader. Nothing is constructed until first use.
func NewLoader(factory Factory) *Loader {
	l := &Loader{factory: factory, slot: make(chan struct{}, 1)}
	return l
}

// GetOrInit returns the engine, constructing it on the first call. A failed
// construction is not remembered; the next call tries again.
func (l *Loader) GetOrInit(ctx context.Context) (Engine, error) {
	l.initMu.Lock()
	defer l.initMu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.engine != nil {
		return l.engine, nil
	}
	eng, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	l.engine = eng
	return eng, nil
}

// Loaded reports whether the engine has been constructed.
func (l *Loader) Loaded() bool {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	return l.engine != nil
}

// Do runs fn with exclusive use of the engine. Waiting for the engine ends
// early if ctx is cancelled.
func (l *Loader) Do(ctx context.Context, fn func(ctx context.Context, eng Engine) error) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	eng, err := l.GetOrInit(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, eng)
}

// Close tears the engine down. Later calls to GetOrInit fail.
func (l *Loader) Close() error {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	l.closed = true
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}
