/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"github.com/friendsincode/clipdeck/internal/media"
)

// DefaultSampleRate is the decode rate. The envelope only needs enough
// resolution to fill DefaultBuckets columns.
const DefaultSampleRate = 8000

var (
	// ErrNoAudio is returned when a source decodes to zero samples.
	ErrNoAudio = errors.New("no audio samples")
	// ErrDecode wraps a failed decoder process.
	ErrDecode = errors.New("decode failed")
)

// Decoder extracts the first audio channel of a source as float samples.
type Decoder interface {
	DecodeFirstChannel(ctx context.Context, src *media.Source) ([]float32, error)
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := stderr.String()
		if len(msg) > 256 {
			msg = msg[len(msg)-256:]
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return out, nil
}

// FFmpegDecoder decodes with ffmpeg into raw little-endian float32.
type FFmpegDecoder struct {
	Binary     string
	WorkDir    string
	SampleRate int
	Runner     Runner
}

// DecodeFirstChannel stages src and pipes its first audio channel out of
// ffmpeg. The staged file is removed before returning.
func (d *FFmpegDecoder) DecodeFirstChannel(ctx context.Context, src *media.Source) ([]float32, error) {
	bin := d.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	run := d.Runner
	if run == nil {
		run = execRunner
	}

	path, release, err := media.Stage(d.WorkDir, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer release()

	out, err := run(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:a:0",
		"-af", "pan=mono|c0=c0",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "f32le",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	samples := DecodeF32LE(out)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}
	return samples, nil
}

// DecodeF32LE converts raw little-endian float32 bytes to samples. A trailing
// partial sample is ignored.
func DecodeF32LE(raw []byte) []float32 {
	n := len(raw) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples
}
