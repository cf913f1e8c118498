package deck

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// media is an image ready to be embedded in the package.
type media struct {
	data        []byte
	ext         string
	contentType string
	width       int
	height      int
}

// prepareImage decodes the image header and keeps formats PowerPoint reads
// natively. Anything else that Go can decode is re-encoded as PNG.
func prepareImage(data []byte) (*media, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("deck: empty image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("deck: decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("deck: image has no size")
	}
	switch format {
	case "png":
		return &media{data: data, ext: "png", contentType: "image/png", width: cfg.Width, height: cfg.Height}, nil
	case "jpeg":
		return &media{data: data, ext: "jpeg", contentType: "image/jpeg", width: cfg.Width, height: cfg.Height}, nil
	case "gif":
		return &media{data: data, ext: "gif", contentType: "image/gif", width: cfg.Width, height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("deck: decode %s image: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("deck: transcode %s to png: %w", format, err)
	}
	b := img.Bounds()
	return &media{data: buf.Bytes(), ext: "png", contentType: "image/png", width: b.Dx(), height: b.Dy()}, nil
}

type rect struct {
	X, Y, CX, CY int64
}

// fit scales a w×h image into box keeping the aspect ratio, centered.
func fit(w, h int, box rect) rect {
	if w <= 0 || h <= 0 {
		return box
	}
	// compare w/h against box.CX/box.CY without floats
	if int64(w)*box.CY > int64(h)*box.CX {
		cy := box.CX * int64(h) / int64(w)
		return rect{X: box.X, Y: box.Y + (box.CY-cy)/2, CX: box.CX, CY: cy}
	}
	cx := box.CY * int64(w) / int64(h)
	return rect{X: box.X + (box.CX-cx)/2, Y: box.Y, CX: cx, CY: box.CY}
}
