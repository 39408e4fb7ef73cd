/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/friendsincode/clipdeck/internal/media"
	"github.com/friendsincode/clipdeck/internal/selection"
)

// MinLength is the shortest output ever requested from the engine.
const MinLength = 0.1

// DefaultBitrateKbps is the re-encode bitrate.
const DefaultBitrateKbps = 192

// Container is an output format.
type Container struct {
	Ext      string
	MIMEType string
	Muxer    string // ffmpeg -f value
}

var (
	ContainerMP3 = Container{Ext: "mp3", MIMEType: "audio/mpeg", Muxer: "mp3"}
	ContainerM4A = Container{Ext: "m4a", MIMEType: "audio/mp4", Muxer: "ipod"}
	ContainerMP4 = Container{Ext: "mp4", MIMEType: "video/mp4", Muxer: "mp4"}
)

// CopyContainerFor picks the stream-copy container from the source MIME.
func CopyContainerFor(mimeType string) Container {
	m := strings.ToLower(mimeType)
	if strings.Contains(m, "mpeg") || strings.Contains(m, "mp3") {
		return ContainerMP3
	}
	return ContainerM4A
}

// Plan is the fully resolved set of engine instructions for one export.
type Plan struct {
	Source          *media.Source
	Selection       selection.Selection
	Duration        float64
	IsFullSelection bool
	HasAudioTrack   bool

	Offset string // seconds, two decimals
	Length string // seconds, two decimals

	Copy Container
}

// BuildPlan resolves trim parameters for src.
func BuildPlan(src *media.Source, sel selection.Selection, duration float64, hasAudio bool) Plan {
	offset := math.Max(0, finite(sel.Start))
	length := math.Max(MinLength, finite(sel.End)-offset)

	return Plan{
		Source:          src,
		Selection:       sel,
		Duration:        duration,
		IsFullSelection: sel.IsFull(duration),
		HasAudioTrack:   hasAudio,
		Offset:          strconv.FormatFloat(offset, 'f', 2, 64),
		Length:          strconv.FormatFloat(length, 'f', 2, 64),
		Copy:            CopyContainerFor(src.MIMEType),
	}
}

// FastPath reports whether the original bytes can be returned untouched.
func (p Plan) FastPath() bool {
	return p.Source.Kind == media.KindAudio && p.IsFullSelection
}

// CanCopy reports whether a stream-copy attempt makes sense.
func (p Plan) CanCopy() bool {
	return p.HasAudioTrack
}

// InputName is the engine-side name of the staged source.
func (p Plan) InputName() string {
	ext := p.Source.Ext()
	if ext == "" {
		ext = ".bin"
	}
	return "input" + ext
}

// OutputName is the engine-side name of the produced file.
func OutputName(c Container) string {
	return "output." + c.Ext
}

// CopyArgs trims the audio stream without re-encoding.
func (p Plan) CopyArgs() []string {
	return []string{
		"-ss", p.Offset,
		"-i", p.InputName(),
		"-t", p.Length,
		"-vn",
		"-c:a", "copy",
		"-f", p.Copy.Muxer,
		OutputName(p.Copy),
	}
}

// ReencodeArgs forces a re-encode. Sources without audio keep their video.
func (p Plan) ReencodeArgs(bitrateKbps int) ([]string, Container) {
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}
	if !p.HasAudioTrack && p.Source.Kind == media.KindVideo {
		return []string{
			"-ss", p.Offset,
			"-i", p.InputName(),
			"-t", p.Length,
			"-an",
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-movflags", "+faststart",
			"-f", ContainerMP4.Muxer,
			OutputName(ContainerMP4),
		}, ContainerMP4
	}
	return []string{
		"-ss", p.Offset,
		"-i", p.InputName(),
		"-t", p.Length,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", ContainerMP3.Muxer,
		OutputName(ContainerMP3),
	}, ContainerMP3
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
