package types

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

var placeholderTints = map[ImageRole]color.RGBA{
	RolePrimary:   {R: 0xd9, G: 0xd4, B: 0xcc, A: 0xff},
	RoleArtistic:  {R: 0xe8, G: 0xdf, B: 0xf0, A: 0xff},
	RoleTechnical: {R: 0xf4, G: 0xf4, B: 0xf4, A: 0xff},
}

// PlaceholderImage renders a flat 3:4 swatch used when no image capability is
// available. Callers must flag the resulting DesignImage as a placeholder.
func PlaceholderImage(role ImageRole) Blob {
	tint, ok := placeholderTints[role]
	if !ok {
		tint = placeholderTints[RolePrimary]
	}
	img := image.NewRGBA(image.Rect(0, 0, 48, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 48; x++ {
			img.SetRGBA(x, y, tint)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return Blob{MIMEType: "image/png", Data: buf.Bytes()}
}
