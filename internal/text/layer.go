package text

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Layer is a transparent RGBA canvas text is drawn into during a frame.
// The pixels are premultiplied, as image.RGBA stores them.
type Layer struct {
	img    *image.RGBA
	shaper Shaper
	dirty  bool
}

// NewLayer returns a cleared layer of the given size in pixels.
func NewLayer(width, height int) *Layer {
	return &Layer{img: image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))}
}

// Bounds returns the layer size.
func (l *Layer) Bounds() image.Rectangle { return l.img.Rect }

// Resize replaces the canvas with a cleared one of the new size.
func (l *Layer) Resize(width, height int) {
	r := image.Rect(0, 0, max(width, 1), max(height, 1))
	if r == l.img.Rect {
		return
	}
	l.img = image.NewRGBA(r)
	l.dirty = false
}

// Dirty reports whether anything was drawn since the last Reset.
func (l *Layer) Dirty() bool { return l.dirty }

// Pixels returns the packed RGBA bytes of the layer.
func (l *Layer) Pixels() []byte { return l.img.Pix }

// Image returns the layer as an image.
func (l *Layer) Image() *image.RGBA { return l.img }

// Reset clears the layer if anything was drawn.
func (l *Layer) Reset() {
	if !l.dirty {
		return
	}
	clear(l.img.Pix)
	l.dirty = false
}

// Measure returns the advance width of a single line of s.
func (l *Layer) Measure(face *Face, s string) float64 {
	return l.shaper.Measure(face, s)
}

// Draw lays s out in box and rasterises it with c.
// It returns the number of lines drawn.
func (l *Layer) Draw(face *Face, s string, box Box, h HAlign, v VAlign, c color.Color) int {
	placed := l.shaper.Place(face, s, box, h, v)
	d := font.Drawer{
		Dst:  l.img,
		Src:  image.NewUniform(c),
		Face: face.draw,
	}
	for _, p := range placed {
		if p.Text == "" {
			continue
		}
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(p.X * 64), Y: fixed.Int26_6(p.Baseline * 64)}
		d.DrawString(p.Text)
		l.dirty = true
	}
	return len(placed)
}
