// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"fmt"
)

// Collaborator errors.
var (
	// ErrNoDrawable is returned by BeginFrame when there is no target to render
	// into this tick. The caller abandons the frame; nothing needs cleaning up.
	ErrNoDrawable = errors.New("device: no drawable available")

	// ErrInvalidTexture is returned when a texture descriptor or its pixel data
	// is inconsistent.
	ErrInvalidTexture = errors.New("device: invalid texture")

	// ErrClosed is returned when operating on a closed device.
	ErrClosed = errors.New("device: closed")
)

// Device creates the fixed-size GPU objects the core manages and opens one
// command stream per frame.
//
// Resource creation and BeginFrame are called from the recording goroutine
// only. DestroyTexture may also be called from the completion goroutine.
type Device interface {
	// CreateBuffer creates a vertex buffer of exactly size bytes.
	CreateBuffer(label string, size int) (Buffer, error)

	// DestroyBuffer releases a buffer. Called at pool teardown only.
	DestroyBuffer(b Buffer)

	// CreateTexture creates an uninitialised sampled texture.
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// WriteTexture replaces the full contents of tex. len(pixels) must equal
	// width*height*4.
	WriteTexture(tex Texture, pixels []byte) error

	// DestroyTexture releases a texture.
	DestroyTexture(tex Texture)

	// BeginFrame opens a command stream that clears the target to clear.
	// Returns ErrNoDrawable when no target is available.
	BeginFrame(clear Color) (CommandStream, error)
}

// Buffer is a fixed-capacity vertex buffer with CPU-visible contents.
type Buffer interface {
	// Label is the debug name, unique per device.
	Label() string

	// Size is the capacity in bytes.
	Size() int

	// Contents returns the CPU-visible memory backing the buffer.
	// len(Contents()) == Size().
	Contents() []byte
}

// Texture is a sampled 2D texture.
type Texture interface {
	Label() string
	Width() int
	Height() int
	Format() PixelFormat
}

// CommandStream records draw calls for one frame and signals completion once
// the GPU has executed them.
type CommandStream interface {
	// SetViewport sets the client coordinate space in points. Origin is the
	// top-left corner.
	SetViewport(width, height float32)

	// SetPipeline activates a pipeline configuration. PipelineNone is never
	// passed.
	SetPipeline(p Pipeline)

	// SetVertexBuffer binds buf for subsequent draws. Only the first length
	// bytes hold valid vertices.
	SetVertexBuffer(buf Buffer, length int)

	// SetTexture binds tex for subsequent textured draws.
	SetTexture(tex Texture)

	// DrawPrimitives draws count vertices starting at start from the bound
	// vertex buffer.
	DrawPrimitives(kind Primitive, start, count int)

	// AddCompletedHandler registers fn to run once the GPU has finished this
	// stream. fn may run on any goroutine.
	AddCompletedHandler(fn func())

	// Commit submits the stream. No further calls are allowed.
	Commit() error
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format PixelFormat
}

// ByteSize returns the size of a tightly packed pixel buffer for d.
func (d TextureDescriptor) ByteSize() int {
	return d.Width * d.Height * d.Format.BytesPerPixel()
}

// Check validates the descriptor and, when pixels is non-nil, its length.
func (d TextureDescriptor) Check(pixels []byte) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidTexture, d.Width, d.Height)
	}
	if d.Format != FormatRGBA8 && d.Format != FormatBGRA8 {
		return fmt.Errorf("%w: format %v", ErrInvalidTexture, d.Format)
	}
	if pixels != nil && len(pixels) != d.ByteSize() {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrInvalidTexture, len(pixels), d.ByteSize())
	}
	return nil
}
