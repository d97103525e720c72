package gg2d

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gg2d/device"
)

// ImagePixels converts img into tightly packed 4-byte pixels of format.
// Colours are premultiplied by alpha, as the textured pipeline blends.
func ImagePixels(img image.Image, format PixelFormat) ([]byte, int, int, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, 0, 0, fmt.Errorf("%w: empty image", device.ErrInvalidTexture)
	}
	var rgba *image.RGBA
	if m, ok := img.(*image.RGBA); ok && m.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		rgba = m
	} else {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	}

	switch format {
	case FormatRGBA8:
		return append([]byte(nil), rgba.Pix...), b.Dx(), b.Dy(), nil
	case FormatBGRA8:
		pix := make([]byte, len(rgba.Pix))
		for i := 0; i < len(pix); i += 4 {
			pix[i+0] = rgba.Pix[i+2]
			pix[i+1] = rgba.Pix[i+1]
			pix[i+2] = rgba.Pix[i+0]
			pix[i+3] = rgba.Pix[i+3]
		}
		return pix, b.Dx(), b.Dy(), nil
	default:
		return nil, 0, 0, fmt.Errorf("%w: format %v", device.ErrInvalidTexture, format)
	}
}

// ScaleImage resamples img to width x height with Catmull-Rom filtering.
func ScaleImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// CreateTextureFromImage implements Engine.
func (r *Renderer) CreateTextureFromImage(img image.Image, format PixelFormat) (TextureID, error) {
	pix, w, h, err := ImagePixels(img, format)
	if err != nil {
		return 0, fmt.Errorf("gg2d: texture from image: %w", err)
	}
	return r.CreateTexture(pix, w, h, format)
}
