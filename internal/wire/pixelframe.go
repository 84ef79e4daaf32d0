package wire

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/zfogg/ascii-chat/internal/errs"
)

// pixelFrameHeaderSize is the width/height prefix on an IMAGE_FRAME payload:
// two little-endian uint32s ahead of the tightly-packed 8-bit RGB buffer.
const pixelFrameHeaderSize = 8

// EncodeImageFrame packs an image into an IMAGE_FRAME payload: a
// width/height prefix followed by tightly-packed 8-bit RGB rows, no stride
// padding.
func EncodeImageFrame(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, pixelFrameHeaderSize+w*h*3)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(w))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h))

	off := pixelFrameHeaderSize
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bch, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			buf[off] = byte(r >> 8)
			buf[off+1] = byte(g >> 8)
			buf[off+2] = byte(bch >> 8)
			off += 3
		}
	}
	return buf
}

// DecodeImageFrame unpacks an IMAGE_FRAME payload into an *image.RGBA.
func DecodeImageFrame(payload []byte) (*image.RGBA, error) {
	if len(payload) < pixelFrameHeaderSize {
		return nil, fmt.Errorf("wire: image frame shorter than header: %w", errs.ErrProtocol)
	}
	w := int(binary.LittleEndian.Uint32(payload[0:4]))
	h := int(binary.LittleEndian.Uint32(payload[4:8]))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("wire: image frame has non-positive dimensions %dx%d: %w", w, h, errs.ErrProtocol)
	}
	want := pixelFrameHeaderSize + w*h*3
	if len(payload) != want {
		return nil, fmt.Errorf("wire: image frame payload length %d does not match %dx%d RGB buffer: %w", len(payload), w, h, errs.ErrProtocol)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	off := pixelFrameHeaderSize
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: payload[off], G: payload[off+1], B: payload[off+2], A: 255})
			off += 3
		}
	}
	return img, nil
}
