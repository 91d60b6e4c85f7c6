package edit

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"atelier/internal/types"
)

// Composite lays a mask overlay (transparent except for the user's marker
// strokes) over base and returns a PNG. A mask of a different size is
// stretched to the base bounds.
func Composite(base, mask types.Blob) (types.Blob, error) {
	baseImg, _, err := image.Decode(bytes.NewReader(base.Data))
	if err != nil {
		return types.Blob{}, fmt.Errorf("edit: decode base: %w", err)
	}
	maskImg, _, err := image.Decode(bytes.NewReader(mask.Data))
	if err != nil {
		return types.Blob{}, fmt.Errorf("edit: decode mask: %w", err)
	}
	b := baseImg.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), baseImg, b.Min, draw.Src)
	if maskImg.Bounds().Dx() != b.Dx() || maskImg.Bounds().Dy() != b.Dy() {
		maskImg = stretch(maskImg, b.Dx(), b.Dy())
	}
	draw.Draw(out, out.Bounds(), maskImg, maskImg.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return types.Blob{}, fmt.Errorf("edit: encode composite: %w", err)
	}
	return types.Blob{MIMEType: "image/png", Data: buf.Bytes()}, nil
}

// stretch is a nearest-neighbour resize; marker strokes do not need more.
func stretch(src image.Image, w, h int) image.Image {
	sb := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
