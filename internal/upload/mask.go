package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// PlaceholderMask returns a fully opaque white 1x1 PNG. It stands in for "no
// user-supplied mask" and relies on the provider to upscale it.
var PlaceholderMask = sync.OnceValues(func() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
})
