/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Kind distinguishes audio sources from video sources.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var (
	// ErrInvalidFileType is the parent of every file type rejection.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrNotMediaFile indicates the file is neither audio nor video.
	ErrNotMediaFile = fmt.Errorf("%w: not an audio or video file", ErrInvalidFileType)

	// ErrUnsupportedAudioExtension indicates an audio file with an extension we do not accept.
	ErrUnsupportedAudioExtension = fmt.Errorf("%w: unsupported audio extension", ErrInvalidFileType)

	// ErrEmptySource indicates the payload has no bytes.
	ErrEmptySource = errors.New("source payload is empty")
)

// AudioExtensions lists the accepted audio file extensions.
var AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac"}

// Source is a user supplied media file. Kind never changes after creation;
// picking a different file means building a new Source.
type Source struct {
	ID       string
	Name     string
	MIMEType string
	Kind     Kind
	Data     []byte
}

// NewSource validates the file type and builds a Source.
func NewSource(id, name, mimeType string, data []byte) (*Source, error) {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	kind, err := ValidateFile(name, mimeType)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	return &Source{
		ID:       id,
		Name:     name,
		MIMEType: mimeType,
		Kind:     kind,
		Data:     data,
	}, nil
}

// Size returns the payload length in bytes.
func (s *Source) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Data)
}

// Ext returns the lowercase extension of the source name, including the dot.
func (s *Source) Ext() string {
	return strings.ToLower(filepath.Ext(s.Name))
}

// ValidateFile decides the media kind from a declared MIME type and file name.
// Any video/* is accepted. Audio is accepted by audio/* MIME or by extension,
// but an audio MIME paired with an unknown extension is rejected.
func ValidateFile(name, mimeType string) (Kind, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(name))

	if strings.HasPrefix(mimeType, "video/") {
		return KindVideo, nil
	}

	knownExt := isAudioExtension(ext)
	if strings.HasPrefix(mimeType, "audio/") {
		if ext != "" && !knownExt {
			return "", ErrUnsupportedAudioExtension
		}
		return KindAudio, nil
	}

	if knownExt {
		return KindAudio, nil
	}
	return "", ErrNotMediaFile
}

func isAudioExtension(ext string) bool {
	for _, candidate := range AudioExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// BaseName returns name without directory and without its last extension.
func BaseName(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "output"
	}
	return base
}

// Stage writes the source payload to a transient file under dir and returns
// its path. The release func removes the file and may be called repeatedly.
func Stage(dir string, src *Source) (string, func(), error) {
	if src == nil || len(src.Data) == 0 {
		return "", func() {}, ErrEmptySource
	}

	f, err := os.CreateTemp(dir, "clipdeck-*"+src.Ext())
	if err != nil {
		return "", func() {}, fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()

	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = os.Remove(path)
		})
	}

	if _, err := f.Write(src.Data); err != nil {
		f.Close()
		release()
		return "", func() {}, fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", func() {}, fmt.Errorf("close staging file: %w", err)
	}

	return path, release, nil
}
