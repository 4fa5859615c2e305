// Package solvelog implements the process-local, ordered, append-only
// solve transcript described in spec.md §5/§6: a bounded buffer of tagged
// strings ("[Phase]", "[Init]", "[VP ...]", "[Scale]", "[Align]",
// "[Solve]", "[Stage1]", "[Outliers]", "[Handedness]", "[Summary]") with
// an optional per-line callback, cleared at the start of every top-level
// solve. It writes every line through a logx.Logger sink as well, so the
// host application sees solve transcript entries mixed into its normal
// structured logs.
package solvelog

import (
	"fmt"

	"github.com/mfagerlund/rotera/logx"
)

// DefaultMaxLines bounds the buffer so a runaway solve cannot exhaust memory.
const DefaultMaxLines = 20000

// Tag identifies which phase or subsystem produced a log line.
type Tag string

const (
	TagPhase      Tag = "Phase"
	TagInit       Tag = "Init"
	TagVP         Tag = "VP"
	TagScale      Tag = "Scale"
	TagAlign      Tag = "Align"
	TagSolve      Tag = "Solve"
	TagStage1     Tag = "Stage1"
	TagOutliers   Tag = "Outliers"
	TagHandedness Tag = "Handedness"
	TagSummary    Tag = "Summary"
)

// Buffer is the append-only solve transcript.
type Buffer struct {
	lines    []string
	maxLines int
	sink     *logx.Logger
	onLine   func(string)
}

// New returns an empty buffer. sink may be nil.
func New(sink *logx.Logger) *Buffer {
	return &Buffer{maxLines: DefaultMaxLines, sink: sink}
}

// OnLine registers a callback invoked with each appended line (§6).
func (b *Buffer) OnLine(fn func(string)) { b.onLine = fn }

// Reset clears the buffer. optimize.Optimize does not call it; it starts
// every top-level solve with a fresh Buffer from New instead (§5).
func (b *Buffer) Reset() { b.lines = b.lines[:0] }

// Logf appends a tagged, formatted line.
func (b *Buffer) Logf(tag Tag, format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...))
	if len(b.lines) >= b.maxLines {
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
	if b.sink != nil {
		b.sink.Infof("%s", line)
	}
	if b.onLine != nil {
		b.onLine(line)
	}
}

// Lines returns a copy of the transcript in append order.
func (b *Buffer) Lines() []string {
	return append([]string(nil), b.lines...)
}
