// Package asciirender composites one or more pixel sources into a single
// colored-ASCII byte buffer: render(sources, target_w, target_h,
// color_mode) -> (bytes, content_hash). It is a pure function over byte
// buffers with no external renderer dependency.
package asciirender

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"math"
)

// ColorMode selects how much of the ANSI color space the renderer emits.
type ColorMode int

const (
	ColorNone ColorMode = iota
	ColorANSI16
	ColorANSI256
	ColorTrueColor
)

// Source is one participant's most recent captured frame, positioned in the
// composite grid by its slot index.
type Source struct {
	Image image.Image // nil means "no frame yet for this slot"
}

// Snapshot is the set of source frames to composite this tick, in grid
// order.
type Snapshot struct {
	Sources []Source
}

// Result is what render() returns: bytes ready to send as an ASCII_FRAME
// payload, plus a content hash for duplicate suppression.
type Result struct {
	Bytes       []byte
	ContentHash uint32
}

// Render composites snapshot into a target_w x target_h grid of colored
// ASCII glyphs, arranging sources left-to-right/top-to-bottom to fill an
// approximately square layout.
//
// Render is a pure function of its inputs and safe for concurrent
// invocation with disjoint Snapshots.
func Render(snap Snapshot, targetW, targetH int, mode ColorMode) Result {
	cols, rows := gridDims(len(snap.Sources))
	cellW := targetW / cols
	cellH := targetH / rows
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	var buf bytes.Buffer
	for gridRow := 0; gridRow < rows; gridRow++ {
		for cellY := 0; cellY < cellH; cellY++ {
			for gridCol := 0; gridCol < cols; gridCol++ {
				idx := gridRow*cols + gridCol
				var src image.Image
				if idx < len(snap.Sources) {
					src = snap.Sources[idx].Image
				}
				renderCellRow(&buf, src, cellW, cellY, cellH, mode)
			}
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("\x1b[0m")

	out := buf.Bytes()
	return Result{Bytes: out, ContentHash: contentHash(out)}
}

// gridDims picks a roughly-square column/row count for n sources, matching
// a conference's typical size of up to 9 participants (e.g. 9 -> 3x3).
func gridDims(n int) (cols, rows int) {
	if n <= 0 {
		return 1, 1
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = int(math.Ceil(float64(n) / float64(cols)))
	return cols, rows
}

// luminanceRamp is ordered from darkest to brightest glyph, the classic
// scalar ASCII-art density ramp.
const luminanceRamp = " .:-=+*#%@"

func renderCellRow(buf *bytes.Buffer, src image.Image, cellW, cellY, cellH int, mode ColorMode) {
	if src == nil {
		for x := 0; x < cellW; x++ {
			buf.WriteByte(' ')
		}
		return
	}

	bounds := src.Bounds()
	srcH := bounds.Dy()
	srcW := bounds.Dx()
	sy := bounds.Min.Y + cellY*srcH/cellH

	for x := 0; x < cellW; x++ {
		sx := bounds.Min.X + x*srcW/cellW
		r, g, b, _ := src.At(sx, sy).RGBA()
		r8, g8, b8 := byte(r>>8), byte(g>>8), byte(b>>8)

		lum := 0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8)
		glyphIdx := int(lum / 255 * float64(len(luminanceRamp)-1))
		glyph := luminanceRamp[glyphIdx]

		writeColorPrefix(buf, r8, g8, b8, mode)
		buf.WriteByte(glyph)
	}
}

func writeColorPrefix(buf *bytes.Buffer, r, g, b byte, mode ColorMode) {
	switch mode {
	case ColorNone:
		return
	case ColorTrueColor:
		fmt.Fprintf(buf, "\x1b[38;2;%d;%d;%dm", r, g, b)
	case ColorANSI256:
		fmt.Fprintf(buf, "\x1b[38;5;%dm", ansi256Index(r, g, b))
	default: // ColorANSI16
		fmt.Fprintf(buf, "\x1b[%dm", ansi16Code(r, g, b))
	}
}

func ansi256Index(r, g, b byte) int {
	toLevel := func(c byte) int { return int(c) * 5 / 255 }
	return 16 + 36*toLevel(r) + 6*toLevel(g) + toLevel(b)
}

func ansi16Code(r, g, b byte) int {
	bright := r > 127 || g > 127 || b > 127
	code := 30
	if r > 63 {
		code += 1
	}
	if g > 63 {
		code += 2
	}
	if b > 63 {
		code += 4
	}
	if bright {
		return code + 60
	}
	return code
}

func contentHash(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}
