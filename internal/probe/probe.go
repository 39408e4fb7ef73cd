/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package probe reads container metadata, chiefly the duration, from
// media sources.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the probe ceiling.
const DefaultTimeout = 4 * time.Second

// ErrUnreadableMedia is returned when a source has no usable duration, the
// probe fails, or it does not finish in time.
var ErrUnreadableMedia = errors.New("media unreadable")

// Result is what a probe learned about a source.
type Result struct {
	Duration       float64 `json:"duration"`
	HasAudioStream bool    `json:"has_audio_stream"`
	HasVideoStream bool    `json:"has_video_stream"`
	AudioCodec     string  `json:"audio_codec,omitempty"`
	VideoCodec     string  `json:"video_codec,omitempty"`
	FormatName     string  `json:"format_name,omitempty"`
	SampleRate     int     `json:"sample_rate,omitempty"`
	Channels       int     `json:"channels,omitempty"`
}

// Prober reads metadata from a source within timeout.
type Prober interface {
	Probe(ctx context.Context, src *media.Source, timeout time.Duration) (Result, error)
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs real processes.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// FFprobe probes sources with the ffprobe binary.
type FFprobe struct {
	binary  string
	workDir string
	run     Runner
	logger  zerolog.Logger
}

// Config configures FFprobe.
type Config struct {
	Binary  string // default "ffprobe"
	WorkDir string // where sources are staged, default os.TempDir()
	Runner  Runner // default ExecRunner
}

// NewFFprobe creates an ffprobe-backed Prober.
func NewFFprobe(cfg Config, logger zerolog.Logger) *FFprobe {
	if cfg.Binary == "" {
		cfg.Binary = "ffprobe"
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner
	}
	return &FFprobe{
		binary:  cfg.Binary,
		workDir: cfg.WorkDir,
		run:     cfg.Runner,
		logger:  logger.With().Str("component", "probe").Logger(),
	}
}

// Probe stages src, runs ffprobe and extracts a finite positive duration.
// The staged file is removed on every path.
func (p *FFprobe) Probe(ctx context.Context, src *media.Source, timeout time.Duration) (Result, error) {
	start := time.Now()
	res, err := p.probe(ctx, src, timeout)
	telemetry.ProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ProbeTotal.WithLabelValues("unreadable").Inc()
		p.logger.Debug().Err(err).Str("source", sourceName(src)).Msg("probe failed")
		return Result{}, err
	}
	telemetry.ProbeTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (p *FFprobe) probe(ctx context.Context, src *media.Source, timeout time.Duration) (Result, error) {
	path, release, err := media.Stage(p.workDir, src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnreadableMedia, err)
	}
	defer release()

	return p.probePath(ctx, path, timeout)
}

// ProbeFile probes a file already on disk without staging a copy.
func (p *FFprobe) ProbeFile(ctx context.Context, path string, timeout time.Duration) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnreadableMedia, err)
	}
	return p.probePath(ctx, path, timeout)
}

func (p *FFprobe) probePath(ctx context.Context, path string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := p.run(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("%w: probe timed out after %s: %w", ErrUnreadableMedia, timeout, ctxErr)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: ffprobe: %w", ErrUnreadableMedia, err)
	}

	return Parse(output)
}

// Parse interprets ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return Result{}, fmt.Errorf("%w: parse ffprobe output: %w", ErrUnreadableMedia, err)
	}

	res := Result{FormatName: out.Format.FormatName}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "audio":
			if !res.HasAudioStream {
				res.HasAudioStream = true
				res.AudioCodec = s.CodecName
				res.SampleRate, _ = strconv.Atoi(s.SampleRate)
				res.Channels = s.Channels
			}
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue
			}
			if !res.HasVideoStream {
				res.HasVideoStream = true
				res.VideoCodec = s.CodecName
			}
		}
	}

	res.Duration = resolveDuration(out)
	if !usable(res.Duration) {
		return Result{}, fmt.Errorf("%w: no usable duration", ErrUnreadableMedia)
	}
	return res, nil
}

// resolveDuration prefers the container duration, then the longest stream,
// then a DURATION tag as written by Matroska muxers.
func resolveDuration(out ffprobeOutput) float64 {
	if d := parseSeconds(out.Format.Duration); usable(d) {
		return d
	}

	var longest float64
	for _, s := range out.Streams {
		if d := parseSeconds(s.Duration); usable(d) && d > longest {
			longest = d
		}
	}
	if longest > 0 {
		return longest
	}

	for _, tags := range append([]map[string]string{out.Format.Tags}, streamTags(out)...) {
		for k, v := range tags {
			if strings.EqualFold(k, "DURATION") {
				if d := parseClock(v); usable(d) && d > longest {
					longest = d
				}
			}
		}
	}
	return longest
}

func streamTags(out ffprobeOutput) []map[string]string {
	tags := make([]map[string]string, 0, len(out.Streams))
	for _, s := range out.Streams {
		tags = append(tags, s.Tags)
	}
	return tags
}

func parseSeconds(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" || v == "N/A" {
		return 0
	}
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return d
}

// parseClock reads HH:MM:SS.fraction.
func parseClock(v string) float64 {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return float64(h)*3600 + float64(m)*60 + s
}

func usable(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

func sourceName(src *media.Source) string {
	if src == nil {
		return ""
	}
	return src.Name
}

// Available reports whether the ffprobe binary can be found.
func (p *FFprobe) Available() bool {
	if _, err := exec.LookPath(p.binary); err != nil {
		return false
	}
	return true
}

type ffprobeOutput struct {
	Format struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType   string            `json:"codec_type"`
		CodecName   string            `json:"codec_name"`
		Duration    string            `json:"duration"`
		SampleRate  string            `json:"sample_rate"`
		Channels    int               `json:"channels"`
		Tags        map[string]string `json:"tags"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}
