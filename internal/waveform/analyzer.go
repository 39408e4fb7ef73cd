/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package waveform builds the amplitude envelope drawn behind the trim
// handles.
package waveform

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/rs/zerolog"
)

// DefaultBuckets is the envelope resolution.
const DefaultBuckets = 1500

// ErrAudioDecodeFailure is returned when an audio source cannot be decoded.
var ErrAudioDecodeFailure = errors.New("audio decode failed")

// Envelope is the reduced waveform of a source.
type Envelope struct {
	Peaks         []float32 `json:"peaks"`
	HasAudioTrack bool      `json:"has_audio_track"`
}

// Buckets returns the number of peaks.
func (e Envelope) Buckets() int { return len(e.Peaks) }

// Silent returns an all-zero envelope for a source without audio.
func Silent(buckets int) Envelope {
	return Envelope{Peaks: make([]float32, buckets), HasAudioTrack: false}
}

// Source analyzes media into envelopes.
type Source interface {
	Analyze(ctx context.Context, src *media.Source) (Envelope, error)
}

// Analyzer decodes and reduces sources.
type Analyzer struct {
	decoder Decoder
	buckets int
	logger  zerolog.Logger
}

// NewAnalyzer creates an Analyzer producing buckets peaks.
func NewAnalyzer(decoder Decoder, buckets int, logger zerolog.Logger) *Analyzer {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Analyzer{
		decoder: decoder,
		buckets: buckets,
		logger:  logger.With().Str("component", "waveform").Logger(),
	}
}

// Buckets returns the configured resolution.
func (a *Analyzer) Buckets() int { return a.buckets }

// Analyze decodes the first channel of src. A video that cannot be decoded
// yields a silent envelope with HasAudioTrack false and no error; an audio
// source that cannot be decoded is an ErrAudioDecodeFailure.
func (a *Analyzer) Analyze(ctx context.Context, src *media.Source) (Envelope, error) {
	samples, err := a.decoder.DecodeFirstChannel(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Envelope{}, ctxErr
		}
		if src.Kind == media.KindVideo {
			telemetry.WaveformTotal.WithLabelValues("no_audio").Inc()
			a.logger.Info().Err(err).Str("source", src.Name).Msg("video has no decodable audio")
			return Silent(a.buckets), nil
		}
		telemetry.WaveformTotal.WithLabelValues("failed").Inc()
		a.logger.Warn().Err(err).Str("source", src.Name).Msg("audio decode failed")
		return Envelope{}, fmt.Errorf("%w: %w", ErrAudioDecodeFailure, err)
	}

	telemetry.WaveformTotal.WithLabelValues("ok").Inc()
	a.logger.Debug().
		Str("source", src.Name).
		Int("samples", len(samples)).
		Int("buckets", a.buckets).
		Msg("waveform decoded")
	return Envelope{Peaks: Reduce(samples, a.buckets), HasAudioTrack: true}, nil
}
