/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/models"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss is returned when no envelope is stored for a key.
var ErrCacheMiss = errors.New("waveform not cached")

// ContentHash identifies a payload for caching.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cache persists envelopes in the waveform_cache table.
type Cache struct {
	db *gorm.DB
}

// NewCache wraps db.
func NewCache(db *gorm.DB) *Cache {
	return &Cache{db: db}
}

// Get loads the envelope for hash at the given resolution.
func (c *Cache) Get(ctx context.Context, hash string, buckets int) (Envelope, error) {
	var row models.WaveformCache
	err := c.db.WithContext(ctx).
		Where("content_hash = ? AND buckets = ?", hash, buckets).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Envelope{}, ErrCacheMiss
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("query waveform cache: %w", err)
	}

	peaks, err := decompressPeaks(row.PeakData)
	if err != nil {
		return Envelope{}, err
	}
	if len(peaks) != buckets {
		return Envelope{}, fmt.Errorf("cached waveform has %d peaks, want %d", len(peaks), buckets)
	}
	return Envelope{Peaks: peaks, HasAudioTrack: row.HasAudioTrack}, nil
}

// Put stores env for hash, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, hash string, size int64, env Envelope) error {
	data, err := compressPeaks(env.Peaks)
	if err != nil {
		return fmt.Errorf("compress waveform: %w", err)
	}
	row := models.WaveformCache{
		ContentHash:   hash,
		Buckets:       len(env.Peaks),
		HasAudioTrack: env.HasAudioTrack,
		PeakData:      data,
		SourceBytes:   size,
		GeneratedAt:   time.Now().UTC(),
	}
	err = c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save waveform cache: %w", err)
	}
	return nil
}

// Prune deletes entries generated before cutoff.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := c.db.WithContext(ctx).Where("generated_at < ?", cutoff).Delete(&models.WaveformCache{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune waveform cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func compressPeaks(peaks []float32) ([]byte, error) {
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, int32(len(peaks))); err != nil {
		return nil, err
	}
	if err := binary.Write(&raw, binary.LittleEndian, peaks); err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

func decompressPeaks(data []byte) ([]float32, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	buf := bytes.NewReader(raw)

	var n int32
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if n < 0 || int64(n)*4 != int64(buf.Len()) {
		return nil, fmt.Errorf("corrupt waveform: header says %d peaks, body has %d bytes", n, buf.Len())
	}
	peaks := make([]float32, n)
	if err := binary.Read(buf, binary.LittleEndian, peaks); err != nil {
		return nil, fmt.Errorf("read peaks: %w", err)
	}
	return peaks, nil
}

// CachedAnalyzer consults a Cache before analyzing. Failures are never
// cached and cache errors never fail an analysis.
type CachedAnalyzer struct {
	next   *Analyzer
	cache  *Cache
	logger zerolog.Logger
}

// NewCachedAnalyzer wraps next with cache.
func NewCachedAnalyzer(next *Analyzer, cache *Cache, logger zerolog.Logger) *CachedAnalyzer {
	return &CachedAnalyzer{
		next:   next,
		cache:  cache,
		logger: logger.With().Str("component", "waveform_cache").Logger(),
	}
}

// Analyze implements Source.
func (c *CachedAnalyzer) Analyze(ctx context.Context, src *media.Source) (Envelope, error) {
	hash := ContentHash(src.Data)
	buckets := c.next.Buckets()

	env, err := c.cache.Get(ctx, hash, buckets)
	switch {
	case err == nil:
		telemetry.WaveformCacheTotal.WithLabelValues("hit").Inc()
		return env, nil
	case errors.Is(err, ErrCacheMiss):
		telemetry.WaveformCacheTotal.WithLabelValues("miss").Inc()
	default:
		telemetry.WaveformCacheTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("hash", hash).Msg("waveform cache read failed")
	}

	env, err = c.next.Analyze(ctx, src)
	if err != nil {
		return Envelope{}, err
	}

	if err := c.cache.Put(ctx, hash, int64(src.Size()), env); err != nil {
		telemetry.WaveformCacheTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("hash", hash).Msg("failed to cache waveform")
	}
	return env, nil
}
