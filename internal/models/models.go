/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// WaveformCache stores a reduced envelope keyed by the content hash of the
// source and the bucket count it was reduced to.
type WaveformCache struct {
	ContentHash   string `gorm:"type:varchar(64);primaryKey"`
	Buckets       int    `gorm:"primaryKey;autoIncrement:false"`
	HasAudioTrack bool
	// PeakData is gzip-compressed: int32 count, then little-endian float32 peaks.
	PeakData    []byte
	SourceBytes int64
	GeneratedAt time.Time
}

// TableName overrides GORM table name.
func (WaveformCache) TableName() string {
	return "waveform_cache"
}

// ExportRecord is one finished export.
type ExportRecord struct {
	ID         string  `gorm:"type:varchar(36);primaryKey"`
	SessionID  string  `gorm:"type:varchar(36);index"`
	Subject    string  `gorm:"type:varchar(255);index"`
	SourceName string  `gorm:"type:varchar(255)"`
	SourceKind string  `gorm:"type:varchar(8)"`
	OutputName string  `gorm:"type:varchar(255)"`
	MIMEType   string  `gorm:"type:varchar(64)"`
	Path       string  `gorm:"type:varchar(16)"` // original, copy or reencode
	Start      float64 `gorm:"not null"`
	End        float64 `gorm:"not null"`
	Bytes      int64   `gorm:"not null"`
	StorageKey string  `gorm:"type:varchar(512)"`
	HandoffTag string  `gorm:"type:varchar(128)"`
	ElapsedMS  int64   `gorm:"not null"`
	CreatedAt  time.Time
}

// TableName overrides GORM table name.
func (ExportRecord) TableName() string {
	return "export_records"
}
