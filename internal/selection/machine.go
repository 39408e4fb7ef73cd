/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package selection

import "math"

// Mode is the active drag interaction.
type Mode int

const (
	ModeNone Mode = iota
	ModeResizeStart
	ModeResizeEnd
	ModeMove
)

func (m Mode) String() string {
	switch m {
	case ModeResizeStart:
		return "start"
	case ModeResizeEnd:
		return "end"
	case ModeMove:
		return "move"
	default:
		return "none"
	}
}

// Input identifies the pointer family. Only the edge threshold differs.
type Input int

const (
	InputMouse Input = iota
	InputTouch
)

// Edge hit thresholds in pixels.
const (
	MouseEdgeThreshold = 8.0
	TouchEdgeThreshold = 24.0
)

// Threshold returns the handle hit distance for the input family.
func (i Input) Threshold() float64 {
	if i == InputTouch {
		return TouchEdgeThreshold
	}
	return MouseEdgeThreshold
}

// PointerEvent is a mouse or touch position along the track, in pixels from
// the left edge.
type PointerEvent struct {
	X     float64
	Input Input
}

// Playhead is the playback position a click-to-seek acts on.
type Playhead interface {
	Position() float64
	Seek(t float64)
}

// DragState is the ephemeral interaction state between down and up.
type DragState struct {
	Active bool
	Mode   Mode
	Input  Input
	Offset float64 // pointer time minus selection start, for ModeMove
	Moved  bool
	DownX  float64

	relocate bool // touch outside the handles, resolved on release
}

// Machine owns the selection for one source and translates pointer events
// into selection changes. It is not safe for concurrent use.
type Machine struct {
	duration float64
	width    float64
	sel      Selection
	drag     DragState
	playhead Playhead
	onChange []func(Selection)
}

// New creates a machine for a source of the given duration rendered on a
// track of width pixels. The selection starts as [0, duration].
func New(duration, width float64) *Machine {
	m := &Machine{}
	m.SetWidth(width)
	m.Reset(duration)
	return m
}

// Reset discards the selection and drag state for a new duration.
func (m *Machine) Reset(duration float64) {
	if !validDuration(duration) {
		duration = 0
	}
	m.duration = duration
	m.drag = DragState{}
	m.apply(Selection{Start: 0, End: duration})
}

// SetWidth updates the rendered track width in pixels.
func (m *Machine) SetWidth(width float64) {
	if math.IsNaN(width) || math.IsInf(width, 0) || width < 0 {
		width = 0
	}
	m.width = width
}

// SetPlayhead binds the playback position used by click-to-seek.
func (m *Machine) SetPlayhead(p Playhead) {
	m.playhead = p
}

// OnChange registers a callback fired after every selection change.
func (m *Machine) OnChange(fn func(Selection)) {
	m.onChange = append(m.onChange, fn)
}

// Selection returns the current range.
func (m *Machine) Selection() Selection { return m.sel }

// Duration returns the source duration the machine was reset with.
func (m *Machine) Duration() float64 { return m.duration }

// Width returns the track width in pixels.
func (m *Machine) Width() float64 { return m.width }

// Drag returns a copy of the drag state.
func (m *Machine) Drag() DragState { return m.drag }

// Dragging reports whether a drag mode is active.
func (m *Machine) Dragging() bool { return m.drag.Active && m.drag.Mode != ModeNone }

// Ready reports whether the machine has a usable duration.
func (m *Machine) Ready() bool { return m.duration > 0 }

// TimeAt converts a track x coordinate into seconds, clamped to the source.
func (m *Machine) TimeAt(x float64) float64 {
	if m.width <= 0 || !m.Ready() {
		return 0
	}
	return clamp(x/m.width*m.duration, 0, m.duration)
}

// PixelAt converts seconds into a track x coordinate.
func (m *Machine) PixelAt(t float64) float64 {
	if !m.Ready() {
		return 0
	}
	return t / m.duration * m.width
}

// Down starts an interaction at ev.
func (m *Machine) Down(ev PointerEvent) {
	if !m.Ready() {
		return
	}
	x := m.sanitizeX(ev.X)
	t := m.TimeAt(x)

	m.drag = DragState{Active: true, Input: ev.Input, DownX: x}

	threshold := ev.Input.Threshold()
	startX := m.PixelAt(m.sel.Start)
	endX := m.PixelAt(m.sel.End)
	nearStart := math.Abs(x-startX) <= threshold
	nearEnd := math.Abs(x-endX) <= threshold

	switch {
	case nearStart && nearEnd:
		// Handles overlap on screen: only the side with room can grow.
		if x < m.width/2 {
			m.drag.Mode = ModeResizeEnd
		} else {
			m.drag.Mode = ModeResizeStart
		}
	case nearStart:
		m.drag.Mode = ModeResizeStart
	case nearEnd:
		m.drag.Mode = ModeResizeEnd
	case x > startX && x < endX:
		m.drag.Mode = ModeMove
		m.drag.Offset = t - m.sel.Start
	default:
		if ev.Input == InputMouse {
			m.drag.Mode = m.relocateNearest(t)
		} else {
			m.drag.relocate = true
		}
	}
}

// Move continues the interaction. It never blocks.
func (m *Machine) Move(ev PointerEvent) {
	if !m.drag.Active {
		return
	}
	x := m.sanitizeX(ev.X)
	if x != m.drag.DownX {
		m.drag.Moved = true
		m.drag.relocate = false
	}
	t := m.TimeAt(x)

	switch m.drag.Mode {
	case ModeResizeStart:
		m.setStart(t, true)
	case ModeResizeEnd:
		m.setEnd(t, true)
	case ModeMove:
		m.moveTo(t - m.drag.Offset)
	}
}

// Up ends the interaction. A press that never moved and did not grab a
// handle is a seek; a motionless press inside the span counts as a click.
func (m *Machine) Up(ev PointerEvent) {
	if !m.drag.Active {
		return
	}
	x := m.sanitizeX(ev.X)
	if x != m.drag.DownX {
		m.drag.Moved = true
		m.drag.relocate = false
	}
	state := m.drag
	m.drag = DragState{}

	if state.Moved || (state.Mode != ModeNone && state.Mode != ModeMove) {
		return
	}

	t := m.TimeAt(x)
	if state.relocate {
		m.relocateNearest(t)
	}
	m.seek(t)
}

// Cancel drops the current interaction without a seek.
func (m *Machine) Cancel() {
	m.drag = DragState{}
}

// CommitStartText parses a mm:ss start entry, clamps it and returns the
// canonical text for the field.
func (m *Machine) CommitStartText(text string) string {
	m.setStart(ParseClock(text), false)
	return FormatClock(m.sel.Start)
}

// CommitEndText parses a mm:ss end entry, clamps it and returns the canonical
// text for the field.
func (m *Machine) CommitEndText(text string) string {
	m.setEnd(ParseClock(text), false)
	return FormatClock(m.sel.End)
}

// Edge names one bound of the selection.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// NudgeStart moves the start by delta seconds under the entry clamps.
func (m *Machine) NudgeStart(delta float64) Selection {
	m.setStart(m.sel.Start+delta, false)
	return m.sel
}

// NudgeEnd moves the end by delta seconds under the entry clamps.
func (m *Machine) NudgeEnd(delta float64) Selection {
	m.setEnd(m.sel.End+delta, false)
	return m.sel
}

// Set assigns both bounds with the entry clamps, start first.
func (m *Machine) Set(start, end float64) Selection {
	if !m.Ready() {
		return m.sel
	}
	gap := MinGap(m.duration)
	ns := clamp(start, 0, m.duration-gap)
	ne := clamp(end, ns+gap, m.duration)
	m.apply(Selection{Start: ns, End: ne})
	return m.sel
}

// SelectAll resets the selection to the whole source.
func (m *Machine) SelectAll() Selection {
	m.apply(Selection{Start: 0, End: m.duration})
	return m.sel
}

func (m *Machine) setStart(t float64, snap bool) {
	if !m.Ready() {
		return
	}
	ns := clamp(t, 0, m.sel.End-MinGap(m.duration))
	if snap && ns <= SnapEpsilon(m.duration) {
		ns = 0
	}
	m.apply(Selection{Start: ns, End: m.sel.End})
}

func (m *Machine) setEnd(t float64, snap bool) {
	if !m.Ready() {
		return
	}
	ne := clamp(t, m.sel.Start+MinGap(m.duration), m.duration)
	if snap && m.duration-ne <= SnapEpsilon(m.duration) {
		ne = m.duration
	}
	m.apply(Selection{Start: m.sel.Start, End: ne})
}

func (m *Machine) moveTo(start float64) {
	length := m.sel.Len()
	eps := SnapEpsilon(m.duration)

	ns := clamp(start, 0, m.duration-length)
	ne := ns + length
	if m.duration-ne <= eps {
		ne = m.duration
		ns = m.duration - length
	}
	if ns <= eps {
		ns = 0
		if ne != m.duration {
			ne = length
		}
	}
	m.apply(Selection{Start: ns, End: ne})
}

// relocateNearest moves whichever edge is closer to t onto t.
func (m *Machine) relocateNearest(t float64) Mode {
	if math.Abs(t-m.sel.Start) <= math.Abs(t-m.sel.End) {
		m.setStart(t, true)
		return ModeResizeStart
	}
	m.setEnd(t, true)
	return ModeResizeEnd
}

func (m *Machine) seek(t float64) {
	if m.playhead == nil {
		return
	}
	if m.sel.Contains(t) {
		m.playhead.Seek(t)
		return
	}
	pos := m.playhead.Position()
	switch {
	case pos < m.sel.Start:
		m.playhead.Seek(m.sel.Start)
	case pos > m.sel.End:
		m.playhead.Seek(m.sel.End)
	}
}

func (m *Machine) sanitizeX(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return clamp(x, 0, m.width)
}

func (m *Machine) apply(next Selection) {
	// Guard against float drift reintroducing an invalid range.
	if m.duration > 0 {
		gap := MinGap(m.duration)
		next.Start = clamp(next.Start, 0, m.duration-gap)
		next.End = clamp(next.End, next.Start+gap, m.duration)
	} else {
		next = Selection{}
	}

	if next == m.sel {
		return
	}
	m.sel = next
	for _, fn := range m.onChange {
		fn(next)
	}
}
