package gg2d

import (
	"fmt"
	"time"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/texcache"
	"github.com/gogpu/gg2d/internal/text"
)

var _ Engine = (*Renderer)(nil)

// SetBackgroundColor implements Engine.
func (r *Renderer) SetBackgroundColor(c Color) { r.background = c }

// ViewportSize implements Engine.
func (r *Renderer) ViewportSize() (width, height float32) { return r.width, r.height }

// FrameDelta implements Engine.
func (r *Renderer) FrameDelta() time.Duration { return r.delta }

// FrameTimestamp implements Engine.
func (r *Renderer) FrameTimestamp() time.Duration { return r.timestamp }

func colorVertex(p Point, c Color) ColorVertex {
	return ColorVertex{X: p.X, Y: p.Y, R: c.R, G: c.G, B: c.B, A: c.A}
}

// DrawPoint implements Engine.
func (r *Renderer) DrawPoint(p Point, c Color) {
	r.mustRecord()
	r.selector.Select(device.PipelineFlat)
	push(r.points, r.flatDrawer, colorVertex(p, c))
}

// FlushPoints implements Engine.
func (r *Renderer) FlushPoints() { r.points.Flush(r.flatDrawer) }

// DrawLine implements Engine.
func (r *Renderer) DrawLine(p0, p1 Point, c Color) {
	r.DrawColoredLine(colorVertex(p0, c), colorVertex(p1, c))
}

// DrawColoredLine implements Engine.
func (r *Renderer) DrawColoredLine(v0, v1 ColorVertex) {
	r.mustRecord()
	r.selector.Select(device.PipelineFlat)
	push(r.lines, r.flatDrawer, v0, v1)
}

// FlushLines implements Engine.
func (r *Renderer) FlushLines() { r.lines.Flush(r.flatDrawer) }

// DrawTriangle implements Engine.
func (r *Renderer) DrawTriangle(p0, p1, p2 Point, c Color) {
	r.DrawColoredTriangle(colorVertex(p0, c), colorVertex(p1, c), colorVertex(p2, c))
}

// DrawColoredTriangle implements Engine.
func (r *Renderer) DrawColoredTriangle(v0, v1, v2 ColorVertex) {
	r.mustRecord()
	r.selector.Select(device.PipelineFlat)
	push(r.triangles, r.flatDrawer, v0, v1, v2)
}

// FlushTriangles implements Engine.
func (r *Renderer) FlushTriangles() { r.triangles.Flush(r.flatDrawer) }

// DrawQuad implements Engine. The quad is split along the p1-p3 diagonal.
func (r *Renderer) DrawQuad(p0, p1, p2, p3 Point, c Color) {
	r.mustRecord()
	r.selector.Select(device.PipelineFlat)
	v0, v1, v2, v3 := colorVertex(p0, c), colorVertex(p1, c), colorVertex(p2, c), colorVertex(p3, c)
	push(r.triangles, r.flatDrawer, v0, v1, v3, v1, v3, v2)
}

// DrawRect implements Engine.
func (r *Renderer) DrawRect(x, y, width, height float32, c Color) {
	r.DrawQuad(Pt(x, y), Pt(x+width, y), Pt(x+width, y+height), Pt(x, y+height), c)
}

// CreateTexture implements Engine.
func (r *Renderer) CreateTexture(pixels []byte, width, height int, format PixelFormat) (TextureID, error) {
	id, err := r.textures.Create(pixels, width, height, format)
	if err != nil {
		return 0, fmt.Errorf("gg2d: create texture: %w", err)
	}
	return TextureID(id), nil
}

// UpdateTexture implements Engine. Panics if id is unknown.
func (r *Renderer) UpdateTexture(id TextureID, pixels []byte) error {
	replaced, err := r.textures.Update(texcache.ID(id), pixels)
	if err != nil {
		return fmt.Errorf("gg2d: update texture: %w", err)
	}
	if replaced {
		r.log.Debug("gg2d: texture in flight, replaced backing", "id", id)
	}
	return nil
}

// DestroyTexture implements Engine. Panics if id is unknown. The text
// layer's texture is not the client's to destroy and counts as unknown.
func (r *Renderer) DestroyTexture(id TextureID) {
	if id == r.textTex {
		panic(fmt.Errorf("gg2d: destroy texture: %w: %d", texcache.ErrUnknownTexture, id))
	}
	r.textures.Destroy(texcache.ID(id))
}

// DrawTexturedRect implements Engine. A change of texture flushes the rects
// batched so far. Panics if id is unknown.
func (r *Renderer) DrawTexturedRect(id TextureID, x, y, width, height float32) {
	r.mustRecord()
	backing := r.textures.MarkUsed(texcache.ID(id))
	r.selector.Select(device.PipelineTextured)
	if r.rectTexture != nil && r.rectTexture != backing {
		r.FlushTexturedRects()
	}
	r.rectTexture = backing

	x1, y1 := x+width, y+height
	push(r.rects, r.texturedDrawer,
		TexturedVertex{X: x, Y: y, U: 0, V: 0},
		TexturedVertex{X: x1, Y: y, U: 1, V: 0},
		TexturedVertex{X: x, Y: y1, U: 0, V: 1},
		TexturedVertex{X: x1, Y: y, U: 1, V: 0},
		TexturedVertex{X: x, Y: y1, U: 0, V: 1},
		TexturedVertex{X: x1, Y: y1, U: 1, V: 1},
	)
}

// FlushTexturedRects implements Engine.
func (r *Renderer) FlushTexturedRects() {
	r.rects.Flush(r.texturedDrawer)
	r.rectTexture = nil
}

// CreateFont implements Engine. Fonts are cached by style, weight and
// height.
func (r *Renderer) CreateFont(style FontStyle, weight FontWeight, height float32) (*Font, error) {
	face, err := r.fonts.Face(style, weight, float64(height))
	if err != nil {
		return nil, fmt.Errorf("gg2d: create font: %w", err)
	}
	return &Font{face: face}, nil
}

// MeasureText implements Engine.
func (r *Renderer) MeasureText(s string, f *Font) float32 {
	return float32(r.textLayer.Measure(f.face, s))
}

// DrawText implements Engine.
func (r *Renderer) DrawText(s string, f *Font, c Color, x, y, width, height float32, h HAlign, v VAlign) {
	r.mustRecord()
	box := text.Box{X: float64(x), Y: float64(y), Width: float64(width), Height: float64(height)}
	r.textLayer.Draw(f.face, s, box, h, v, toNRGBA(c))
}
