package asciirender

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderIsDeterministicForIdenticalInput(t *testing.T) {
	snap := Snapshot{Sources: []Source{{Image: solidImage(80, 24, color.RGBA{R: 255, A: 255})}}}

	r1 := Render(snap, 80, 24, ColorTrueColor)
	r2 := Render(snap, 80, 24, ColorTrueColor)

	require.Equal(t, r1.ContentHash, r2.ContentHash)
	require.Equal(t, r1.Bytes, r2.Bytes)
}

func TestRenderDifferentInputsDifferentHash(t *testing.T) {
	redSnap := Snapshot{Sources: []Source{{Image: solidImage(80, 24, color.RGBA{R: 255, A: 255})}}}
	blueSnap := Snapshot{Sources: []Source{{Image: solidImage(80, 24, color.RGBA{B: 255, A: 255})}}}

	r1 := Render(redSnap, 80, 24, ColorTrueColor)
	r2 := Render(blueSnap, 80, 24, ColorTrueColor)

	require.NotEqual(t, r1.ContentHash, r2.ContentHash)
}

func TestRenderHandlesMissingSourceAsBlank(t *testing.T) {
	snap := Snapshot{Sources: []Source{{Image: nil}}}
	r := Render(snap, 10, 2, ColorNone)
	require.NotEmpty(t, r.Bytes)
}

func TestGridDimsApproximatelySquare(t *testing.T) {
	cols, rows := gridDims(9)
	require.Equal(t, 3, cols)
	require.Equal(t, 3, rows)

	cols, rows = gridDims(1)
	require.Equal(t, 1, cols)
	require.Equal(t, 1, rows)

	cols, rows = gridDims(4)
	require.Equal(t, 2, cols)
	require.Equal(t, 2, rows)
}

func TestColorNoneEmitsNoEscapeCodes(t *testing.T) {
	snap := Snapshot{Sources: []Source{{Image: solidImage(4, 4, color.RGBA{R: 200, A: 255})}}}
	r := Render(snap, 4, 4, ColorNone)
	require.NotContains(t, string(r.Bytes), "\x1b[38")
}

func TestRenderNineSourcesFitsGrid(t *testing.T) {
	sources := make([]Source, 9)
	for i := range sources {
		sources[i] = Source{Image: solidImage(10, 10, color.RGBA{G: byte(i * 20), A: 255})}
	}
	r := Render(Snapshot{Sources: sources}, 90, 90, ColorANSI256)
	require.NotEmpty(t, r.Bytes)
}
