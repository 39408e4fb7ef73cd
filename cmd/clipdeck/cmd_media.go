/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/friendsincode/clipdeck/internal/engine"
	"github.com/friendsincode/clipdeck/internal/export"
	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/probe"
	"github.com/friendsincode/clipdeck/internal/render"
	"github.com/friendsincode/clipdeck/internal/selection"
	"github.com/friendsincode/clipdeck/internal/waveform"
)

var (
	waveformBuckets int
	waveformPNG     string
	waveformWidth   int
	waveformHeight  int

	trimStart  string
	trimEnd    string
	trimOutput string
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print duration and stream information of a media file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

var waveformCmd = &cobra.Command{
	Use:   "waveform <file>",
	Short: "Compute the waveform envelope of a media file",
	Long: `Compute the normalized peak envelope of the first audio channel.

The envelope is printed as JSON. With --png the timeline is rendered instead.

Examples:
  clipdeck waveform song.mp3 --buckets 200
  clipdeck waveform talk.mp4 --png talk.png --width 1200 --height 160
`,
	Args: cobra.ExactArgs(1),
	RunE: runWaveform,
}

var trimCmd = &cobra.Command{
	Use:   "trim <file>",
	Short: "Export the part of a media file between --start and --end",
	Long: `Export a trimmed copy of a media file.

Times use the MM:SS clock. Stream copy is tried first and re-encoding is the
fallback. Exporting the whole file returns it unchanged.

Examples:
  clipdeck trim song.mp3 --start 00:05 --end 00:15
  clipdeck trim talk.mp4 --start 01:00 --end 02:30 -o excerpt.mp4
`,
	Args: cobra.ExactArgs(1),
	RunE: runTrim,
}

func init() {
	waveformCmd.Flags().IntVar(&waveformBuckets, "buckets", 0, "Envelope buckets (default from configuration)")
	waveformCmd.Flags().StringVar(&waveformPNG, "png", "", "Render the timeline to this PNG file")
	waveformCmd.Flags().IntVar(&waveformWidth, "width", 1000, "PNG width in pixels")
	waveformCmd.Flags().IntVar(&waveformHeight, "height", 120, "PNG height in pixels")

	trimCmd.Flags().StringVar(&trimStart, "start", "00:00", "Selection start (MM:SS)")
	trimCmd.Flags().StringVar(&trimEnd, "end", "", "Selection end (MM:SS, default end of file)")
	trimCmd.Flags().StringVarP(&trimOutput, "output", "o", "", "Output path (default <name>.<ext> in the current directory, <name>-trim.<ext> if that is the input)")

	rootCmd.AddCommand(probeCmd, waveformCmd, trimCmd)
}

// readSource loads path as a Source, typing it by extension.
func readSource(path string) (*media.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return media.NewSource(uuid.NewString(), filepath.Base(path), "", data)
}

func newProber() *probe.FFprobe {
	return probe.NewFFprobe(probe.Config{Binary: cfg.FFprobeBin, WorkDir: cfg.WorkDir}, logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runProbe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	name := filepath.Base(args[0])
	kind, err := media.ValidateFile(name, mime.TypeByExtension(strings.ToLower(filepath.Ext(name))))
	if err != nil {
		return err
	}
	res, err := newProber().ProbeFile(cmd.Context(), args[0], cfg.ProbeTimeout)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), struct {
		Name string     `json:"name"`
		Kind media.Kind `json:"kind"`
		probe.Result
		Clock string `json:"clock"`
	}{Name: name, Kind: kind, Result: res, Clock: selection.FormatClock(res.Duration)})
}

func runWaveform(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	buckets := waveformBuckets
	if buckets <= 0 {
		buckets = cfg.WaveformBuckets
	}

	decoder := &waveform.FFmpegDecoder{Binary: cfg.FFmpegBin, WorkDir: cfg.WorkDir}
	env, err := waveform.NewAnalyzer(decoder, buckets, logger).Analyze(cmd.Context(), src)
	if err != nil {
		return err
	}

	if waveformPNG == "" {
		return writeJSON(cmd.OutOrStdout(), env)
	}

	res, err := newProber().Probe(cmd.Context(), src, cfg.ProbeTimeout)
	if err != nil {
		return err
	}
	surface := render.NewImageSurface(waveformWidth, waveformHeight)
	render.Render(surface, render.Frame{Peaks: waveform.Normalize(env.Peaks), Duration: res.Duration, End: res.Duration}, render.DefaultStyle)

	f, err := os.Create(waveformPNG)
	if err != nil {
		return fmt.Errorf("create %s: %w", waveformPNG, err)
	}
	if err := surface.EncodePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runTrim(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	res, err := newProber().Probe(ctx, src, cfg.ProbeTimeout)
	if err != nil {
		return err
	}

	machine := selection.New(res.Duration, 1)
	end := res.Duration
	if trimEnd != "" {
		end = selection.ParseClock(trimEnd)
	}
	sel := machine.Set(selection.ParseClock(trimStart), end)

	loader := engine.NewLoader(func(context.Context) (engine.Engine, error) {
		return engine.NewFFmpeg(engine.FFmpegConfig{Binary: cfg.FFmpegBin, WorkDir: cfg.WorkDir}, logger)
	})
	defer loader.Close()

	pipeline := export.NewPipeline(loader, export.Options{BitrateKbps: cfg.ReencodeBitrateKbps}, logger)
	out, err := pipeline.Run(ctx, src, sel, res.Duration, res.HasAudioStream)
	if err != nil {
		return err
	}

	path, err := trimOutputPath(args[0], trimOutput, out.Artifact.Name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out.Artifact.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s-%s  %s  %d bytes\n",
		path, selection.FormatClock(sel.Start), selection.FormatClock(sel.End), out.Path, out.Artifact.Size())
	return nil
}

// trimOutputPath picks where runTrim writes. An explicit path naming the
// input is refused; a default name that collides with it gets a -trim suffix.
func trimOutputPath(input, explicit, artifactName string) (string, error) {
	if explicit != "" {
		if samePath(explicit, input) {
			return "", fmt.Errorf("output %s would overwrite the input", explicit)
		}
		return explicit, nil
	}
	path := artifactName
	for samePath(path, input) {
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + "-trim" + ext
	}
	return path, nil
}

func samePath(a, b string) bool {
	if ai, err := os.Stat(a); err == nil {
		if bi, err := os.Stat(b); err == nil {
			return os.SameFile(ai, bi)
		}
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
