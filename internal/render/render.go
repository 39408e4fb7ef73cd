/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package render paints the timeline: waveform bars, the selected span with
// its handles, and the playback cursor.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
)

// Surface is a raster target.
type Surface interface {
	Size() (w, h int)
	FillRect(x0, y0, x1, y1 int, c color.Color)
}

// Frame is the state being drawn.
type Frame struct {
	Peaks     []float32
	Duration  float64
	Start     float64
	End       float64
	Cursor    float64
	HasCursor bool
}

// Style holds the palette and geometry.
type Style struct {
	Background  color.RGBA
	Bar         color.RGBA
	BarSelected color.RGBA
	Overlay     color.RGBA
	Handle      color.RGBA
	Cursor      color.RGBA
	HandleWidth int
	BarGap      int // columns between bars
	MinBar      int // minimum bar height in pixels
}

// DefaultStyle is the dark timeline palette.
var DefaultStyle = Style{
	Background:  color.RGBA{R: 0x14, G: 0x16, B: 0x1c, A: 0xff},
	Bar:         color.RGBA{R: 0x4b, G: 0x52, B: 0x63, A: 0xff},
	BarSelected: color.RGBA{R: 0x7c, G: 0xc4, B: 0xff, A: 0xff},
	Overlay:     color.RGBA{R: 0x7c, G: 0xc4, B: 0xff, A: 0x26},
	Handle:      color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	Cursor:      color.RGBA{R: 0xff, G: 0x5c, B: 0x5c, A: 0xff},
	HandleWidth: 3,
	BarGap:      0,
	MinBar:      1,
}

// Render paints f onto s. It only reads f.
func Render(s Surface, f Frame, st Style) {
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}
	s.FillRect(0, 0, w, h, st.Background)

	startX, endX := -1, -1
	if f.Duration > 0 {
		startX = column(f.Start, f.Duration, w)
		endX = column(f.End, f.Duration, w)
	}

	if startX >= 0 && endX > startX {
		s.FillRect(startX, 0, endX, h, st.Overlay)
	}

	if len(f.Peaks) > 0 {
		mid := h / 2
		step := st.BarGap + 1
		for x := 0; x < w; x += step {
			idx := x * len(f.Peaks) / w
			if idx >= len(f.Peaks) {
				idx = len(f.Peaks) - 1
			}
			amp := float64(f.Peaks[idx])
			if math.IsNaN(amp) || amp < 0 {
				amp = 0
			}
			if amp > 1 {
				amp = 1
			}
			half := int(amp * float64(h) / 2)
			if half < st.MinBar {
				half = st.MinBar
			}
			c := st.Bar
			if x >= startX && x < endX {
				c = st.BarSelected
			}
			s.FillRect(x, mid-half, x+1, mid+half, c)
		}
	}

	if startX >= 0 {
		hw := st.HandleWidth
		if hw <= 0 {
			hw = 1
		}
		s.FillRect(startX, 0, startX+hw, h, st.Handle)
		s.FillRect(endX-hw, 0, endX, h, st.Handle)
	}

	if f.HasCursor && f.Duration > 0 {
		cx := column(f.Cursor, f.Duration, w)
		s.FillRect(cx, 0, cx+1, h, st.Cursor)
	}
}

// column maps t seconds onto [0, w].
func column(t, duration float64, w int) int {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > duration {
		t = duration
	}
	return int(math.Round(t / duration * float64(w)))
}

// ImageSurface draws into an RGBA image.
type ImageSurface struct {
	Img *image.RGBA
}

// NewImageSurface allocates a w by h surface.
func NewImageSurface(w, h int) *ImageSurface {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &ImageSurface{Img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

// Size implements Surface.
func (s *ImageSurface) Size() (int, int) {
	b := s.Img.Bounds()
	return b.Dx(), b.Dy()
}

// FillRect implements Surface. Translucent colors are blended over the
// existing pixels.
func (s *ImageSurface) FillRect(x0, y0, x1, y1 int, c color.Color) {
	r := image.Rect(x0, y0, x1, y1).Intersect(s.Img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(s.Img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

// EncodePNG writes the surface as PNG.
func (s *ImageSurface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.Img)
}
