package gg2d

import (
	"image"
	"time"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/text"
)

// Point is a position in points, origin top-left, y down.
type Point struct {
	X, Y float32
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float32) Point { return Point{X: x, Y: y} }

// Vertex layouts and texture formats, re-exported from the device package.
type (
	ColorVertex    = device.ColorVertex
	TexturedVertex = device.TexturedVertex
	PixelFormat    = device.PixelFormat
)

const (
	FormatRGBA8 = device.FormatRGBA8
	FormatBGRA8 = device.FormatBGRA8
)

// TextureID names a texture created through the Engine. It stays valid
// across updates until DestroyTexture.
type TextureID uint64

// FontStyle selects the font family.
type FontStyle = text.Style

const (
	FontProportional = text.Proportional
	FontMonospaced   = text.Monospaced
)

// FontWeight selects the font weight.
type FontWeight = text.Weight

const (
	WeightMedium = text.Medium
	WeightBold   = text.Bold
)

// HAlign is the horizontal alignment of text lines within their box.
type HAlign = text.HAlign

const (
	AlignLeft   = text.AlignLeft
	AlignCenter = text.AlignCenter
	AlignRight  = text.AlignRight
)

// VAlign is the vertical alignment of a text block within its box.
type VAlign = text.VAlign

const (
	AlignTop    = text.AlignTop
	AlignMiddle = text.AlignMiddle
	AlignBottom = text.AlignBottom
)

// Font is a face created by Engine.CreateFont.
type Font struct {
	face *text.Face
}

// Style returns the font family.
func (f *Font) Style() FontStyle { return f.face.Style() }

// Weight returns the font weight.
func (f *Font) Weight() FontWeight { return f.face.Weight() }

// Height returns the font height in points.
func (f *Font) Height() float32 { return float32(f.face.Height()) }

// LineHeight returns the distance between baselines in points.
func (f *Font) LineHeight() float32 { return float32(f.face.LineHeight()) }

// String returns a debug description.
func (f *Font) String() string { return f.face.String() }

// Engine is the drawing surface a Client renders through.
//
// Draw calls are only valid during Client.Frame. Geometry is batched: a
// Flush method forces the pending batch of that kind to the GPU now, which
// is only needed to control layering between batches of the same pipeline.
// Textures and fonts may also be created during Client.Setup.
type Engine interface {
	// SetBackgroundColor sets the clear colour used from the next frame on.
	SetBackgroundColor(c Color)
	// ViewportSize returns the client coordinate space in points.
	ViewportSize() (width, height float32)
	// FrameDelta returns the time since the previous rendered frame.
	FrameDelta() time.Duration
	// FrameTimestamp returns the time since the renderer was created, taken
	// at the start of the current frame.
	FrameTimestamp() time.Duration

	DrawPoint(p Point, c Color)
	FlushPoints()
	DrawLine(p0, p1 Point, c Color)
	// DrawColoredLine draws a line whose colour blends between its ends.
	DrawColoredLine(v0, v1 ColorVertex)
	FlushLines()
	DrawTriangle(p0, p1, p2 Point, c Color)
	// DrawColoredTriangle draws a triangle with per-vertex colours.
	DrawColoredTriangle(v0, v1, v2 ColorVertex)
	FlushTriangles()
	// DrawQuad draws the quadrilateral p0 p1 p2 p3, given in winding order,
	// as two triangles.
	DrawQuad(p0, p1, p2, p3 Point, c Color)
	DrawRect(x, y, width, height float32, c Color)

	CreateTexture(pixels []byte, width, height int, format PixelFormat) (TextureID, error)
	CreateTextureFromImage(img image.Image, format PixelFormat) (TextureID, error)
	// UpdateTexture replaces a texture's pixels. Frames already recorded
	// keep sampling the old pixels.
	// It returns an error for malformed pixels or a device failure and
	// panics for an unknown id.
	UpdateTexture(id TextureID, pixels []byte) error
	// DestroyTexture forgets id. Frames already recorded keep their pixels
	// until they complete. Panics for an unknown id.
	DestroyTexture(id TextureID)
	DrawTexturedRect(id TextureID, x, y, width, height float32)
	FlushTexturedRects()

	CreateFont(style FontStyle, weight FontWeight, height float32) (*Font, error)
	// MeasureText returns the advance width of a single line of s.
	MeasureText(s string, f *Font) float32
	// DrawText lays s out inside the box, wrapping at word boundaries, and
	// draws it above all geometry of the frame.
	DrawText(s string, f *Font, c Color, x, y, width, height float32, h HAlign, v VAlign)
}

// Client is the application driven by a Renderer.
type Client interface {
	// Setup is called once by NewRenderer.
	Setup(e Engine) error
	// Frame is called once per rendered frame.
	Frame(e Engine)
}

// ClientFuncs adapts a pair of functions to Client. Nil functions are
// skipped.
type ClientFuncs struct {
	SetupFunc func(Engine) error
	FrameFunc func(Engine)
}

// Setup implements Client.
func (c ClientFuncs) Setup(e Engine) error {
	if c.SetupFunc == nil {
		return nil
	}
	return c.SetupFunc(e)
}

// Frame implements Client.
func (c ClientFuncs) Frame(e Engine) {
	if c.FrameFunc != nil {
		c.FrameFunc(e)
	}
}
