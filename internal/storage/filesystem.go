/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStore keeps objects under a root directory.
type FilesystemStore struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystemStore creates a store rooted at root.
func NewFilesystemStore(root string, logger zerolog.Logger) *FilesystemStore {
	return &FilesystemStore{
		root:   root,
		logger: logger.With().Str("component", "storage").Str("backend", "filesystem").Logger(),
	}
}

// Put writes data under key, creating parent directories. Writes go through
// a temporary file so readers never see partial objects.
func (fs *FilesystemStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	full, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}

	fs.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("object stored")
	return nil
}

// Get reads the object at key.
func (fs *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Delete removes the object at key. Missing objects are not an error.
func (fs *FilesystemStore) Delete(_ context.Context, key string) error {
	full, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// URL returns a file:// reference to the object.
func (fs *FilesystemStore) URL(key string) string {
	full, err := fs.path(key)
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return "file://" + filepath.ToSlash(abs)
}

// CheckAccess verifies the root directory can be written.
func (fs *FilesystemStore) CheckAccess(_ context.Context) error {
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}
	probe, err := os.CreateTemp(fs.root, ".access-*")
	if err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (fs *FilesystemStore) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(cleaned)), nil
}
