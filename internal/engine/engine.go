/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine runs trim commands against an external transcoder that
// works on its own private file namespace.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidName is returned for names that escape the engine namespace.
	ErrInvalidName = errors.New("engine: invalid file name")
	// ErrNotFound is returned when reading a file the engine does not have.
	ErrNotFound = errors.New("engine: file not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine: closed")
	// ErrExec wraps a failed command.
	ErrExec = errors.New("engine: command failed")
)

// Engine is a transcoder with a virtual filesystem. It is not safe for
// concurrent use; callers serialize through Loader.Do.
type Engine interface {
	WriteFile(ctx context.Context, name string, data []byte) error
	Exec(ctx context.Context, args []string) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error
	Close() error
}

// FFmpegConfig configures the ffmpeg-backed engine.
type FFmpegConfig struct {
	Binary  string // ffmpeg executable, default "ffmpeg"
	WorkDir string // parent of the private namespace, default os.TempDir()
}

// FFmpeg runs ffmpeg inside a private temporary directory.
type FFmpeg struct {
	binary string
	dir    string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewFFmpeg creates the private namespace and checks the binary exists.
func NewFFmpeg(cfg FFmpegConfig, logger zerolog.Logger) (*FFmpeg, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", binary, err)
	}

	dir, err := os.MkdirTemp(cfg.WorkDir, "clipdeck-engine-*")
	if err != nil {
		return nil, fmt.Errorf("create engine dir: %w", err)
	}

	logger = logger.With().Str("component", "engine").Logger()
	logger.Info().Str("binary", path).Str("dir", dir).Msg("transcoding engine ready")

	return &FFmpeg{binary: path, dir: dir, logger: logger}, nil
}

// Dir returns the namespace root.
func (f *FFmpeg) Dir() string { return f.dir }

// WriteFile stores data under name.
func (f *FFmpeg) WriteFile(ctx context.Context, name string, data []byte) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of name.
func (f *FFmpeg) ReadFile(ctx context.Context, name string) ([]byte, error) {
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// DeleteFile removes name. Missing files are not an error.
func (f *FFmpeg) DeleteFile(_ context.Context, name string) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Exec runs ffmpeg with args relative to the namespace. Any argument that
// looks like an absolute path is rejected.
func (f *FFmpeg) Exec(ctx context.Context, args []string) error {
	if f.isClosed() {
		return ErrClosed
	}
	for _, a := range args {
		if filepath.IsAbs(a) || strings.Contains(a, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %q", ErrInvalidName, a)
		}
	}

	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, f.binary, full...)
	cmd.Dir = f.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Debug().Strs("args", args).Msg("engine exec")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("%w: %v: %s", ErrExec, err, msg)
	}
	return nil
}

// Close removes the namespace.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("remove engine dir: %w", err)
	}
	return nil
}

func (f *FFmpeg) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FFmpeg) resolve(name string) (string, error) {
	if f.isClosed() {
		return "", ErrClosed
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, name), nil
}

// ValidateName accepts plain file names only.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
