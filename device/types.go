// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import "fmt"

// PixelFormat is a 4-byte-per-pixel texture format.
type PixelFormat uint8

const (
	// FormatRGBA8 stores red, green, blue, alpha bytes in that order.
	FormatRGBA8 PixelFormat = iota
	// FormatBGRA8 stores blue, green, red, alpha bytes in that order.
	FormatBGRA8
)

// BytesPerPixel returns 4 for both supported formats.
func (f PixelFormat) BytesPerPixel() int { return 4 }

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Primitive is the topology of a draw call.
type Primitive uint8

const (
	PrimitivePoint Primitive = iota
	PrimitiveLine
	PrimitiveTriangle
)

// String returns the primitive name.
func (p Primitive) String() string {
	switch p {
	case PrimitivePoint:
		return "Point"
	case PrimitiveLine:
		return "Line"
	case PrimitiveTriangle:
		return "Triangle"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

// Pipeline identifies a GPU pipeline configuration.
type Pipeline uint8

const (
	// PipelineNone is the state between frames: nothing bound.
	PipelineNone Pipeline = iota
	// PipelineFlat draws per-vertex coloured geometry (ColorVertex).
	PipelineFlat
	// PipelineTextured draws textured geometry (TexturedVertex).
	PipelineTextured
)

// String returns the pipeline name.
func (p Pipeline) String() string {
	switch p {
	case PipelineNone:
		return "None"
	case PipelineFlat:
		return "Flat"
	case PipelineTextured:
		return "Textured"
	default:
		return fmt.Sprintf("Pipeline(%d)", int(p))
	}
}

// Color is a non-premultiplied colour with channels in [0, 1].
type Color struct {
	R, G, B, A float32
}

// ColorVertex is the vertex record of the flat pipeline.
// Layout: x, y, r, g, b, a as little-endian float32 (24 bytes).
type ColorVertex struct {
	X, Y       float32
	R, G, B, A float32
}

// TexturedVertex is the vertex record of the textured pipeline.
// Layout: x, y, u, v as little-endian float32 (16 bytes).
type TexturedVertex struct {
	X, Y float32
	U, V float32
}

// Vertex strides in bytes.
const (
	ColorVertexStride    = 24
	TexturedVertexStride = 16
)

// DefaultBufferSize is the reference capacity of a pooled vertex buffer.
const DefaultBufferSize = 8192
