/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export turns a source and a selection into a trimmed artifact.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/clipdeck/internal/engine"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/friendsincode/clipdeck/internal/telemetry"
	"github.com/rs/zerolog"
)

const tracerName = "clipdeck/export"

// Export paths, used as metric labels.
const (
	PathOriginal = "original"
	PathCopy     = "copy"
	PathReencode = "reencode"
)

var (
	// ErrExportFailed is returned when every tier failed.
	ErrExportFailed = errors.New("export failed")
	// ErrEmptyOutput marks an attempt that produced no bytes.
	ErrEmptyOutput = errors.New("engine produced empty output")
	// ErrNoSource is returned when exporting without a source.
	ErrNoSource = errors.New("no source to export")
)

// Options tunes the pipeline.
type Options struct {
	BitrateKbps int
}

// Result describes a finished export.
type Result struct {
	Artifact *media.Artifact
	Path     string
	Elapsed  time.Duration
}

// Pipeline runs exports against the shared engine.
type Pipeline struct {
	loader  *engine.Loader
	bitrate int
	logger  zerolog.Logger
}

// NewPipeline creates a pipeline using loader for engine access.
func NewPipeline(loader *engine.Loader, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.BitrateKbps <= 0 {
		opts.BitrateKbps = DefaultBitrateKbps
	}
	return &Pipeline{
		loader:  loader,
		bitrate: opts.BitrateKbps,
		logger:  logger.With().Str("component", "export").Logger(),
	}
}

// Export produces the trimmed artifact for sel.
func (p *Pipeline) Export(ctx context.Context, src *media.Source, sel selection.Selection, duration float64, hasAudio bool) (*media.Artifact, error) {
	res, err := p.Run(ctx, src, sel, duration, hasAudio)
	if err != nil {
		return nil, err
	}
	return res.Artifact, nil
}

// Run is Export with the chosen path and timing.
func (p *Pipeline) Run(ctx context.Context, src *media.Source, sel selection.Selection, duration float64, hasAudio bool) (*Result, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	start := time.Now()
	plan := BuildPlan(src, sel, duration, hasAudio)

	ctx, span := telemetry.StartSpan(ctx, tracerName, "export")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"source.kind":     string(src.Kind),
		"source.mime":     src.MIMEType,
		"source.size":     src.Size(),
		"export.offset":   plan.Offset,
		"export.length":   plan.Length,
		"export.full":     plan.IsFullSelection,
		"export.hasAudio": hasAudio,
	})

	if plan.FastPath() {
		res := &Result{Artifact: src.AsArtifact(), Path: PathOriginal, Elapsed: time.Since(start)}
		p.record(res.Path, "ok", res.Elapsed)
		telemetry.AddSpanAttributes(span, map[string]any{"export.path": res.Path})
		return res, nil
	}

	var res *Result
	err := p.loader.Do(ctx, func(ctx context.Context, eng engine.Engine) error {
		var err error
		res, err = p.runTiers(ctx, eng, plan)
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		telemetry.RecordError(span, err)
		p.record(PathReencode, "failed", elapsed)
		if errors.Is(err, ErrExportFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	res.Elapsed = elapsed
	p.record(res.Path, "ok", elapsed)
	telemetry.AddSpanAttributes(span, map[string]any{
		"export.path": res.Path,
		"export.size": res.Artifact.Size(),
	})
	p.logger.Info().
		Str("source", src.Name).
		Str("path", res.Path).
		Str("output", res.Artifact.Name).
		Int("bytes", res.Artifact.Size()).
		Dur("elapsed", elapsed).
		Msg("export complete")
	return res, nil
}

func (p *Pipeline) runTiers(ctx context.Context, eng engine.Engine, plan Plan) (*Result, error) {
	input := plan.InputName()
	if err := eng.WriteFile(ctx, input, plan.Source.Data); err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}
	defer p.cleanup(eng, input)

	if plan.CanCopy() {
		data, err := p.attempt(ctx, eng, plan.CopyArgs(), OutputName(plan.Copy))
		if err == nil {
			return &Result{Artifact: p.artifact(plan, plan.Copy, data), Path: PathCopy}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn().Err(err).Str("source", plan.Source.Name).Msg("stream copy failed, re-encoding")
		telemetry.ExportTierFallbackTotal.Inc()
	}

	args, out := plan.ReencodeArgs(p.bitrate)
	data, err := p.attempt(ctx, eng, args, OutputName(out))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Error().Err(err).Str("source", plan.Source.Name).Msg("re-encode failed")
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return &Result{Artifact: p.artifact(plan, out, data), Path: PathReencode}, nil
}

// attempt runs one engine command and reads back its output. The output
// file is removed whether or not the command succeeded.
func (p *Pipeline) attempt(ctx context.Context, eng engine.Engine, args []string, output string) ([]byte, error) {
	defer p.cleanup(eng, output)

	if err := eng.Exec(ctx, args); err != nil {
		return nil, err
	}
	data, err := eng.ReadFile(ctx, output)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}

func (p *Pipeline) cleanup(eng engine.Engine, name string) {
	// Cleanup must run even when the export context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.DeleteFile(ctx, name); err != nil {
		p.logger.Debug().Err(err).Str("file", name).Msg("engine cleanup failed")
	}
}

func (p *Pipeline) artifact(plan Plan, c Container, data []byte) *media.Artifact {
	return &media.Artifact{
		Name:     media.OutputName(plan.Source.Name, c.Ext),
		MIMEType: c.MIMEType,
		Data:     data,
	}
}

func (p *Pipeline) record(path, result string, elapsed time.Duration) {
	telemetry.ExportTotal.WithLabelValues(path, result).Inc()
	if result == "ok" {
		telemetry.ExportDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	}
}
