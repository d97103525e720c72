package gg2d

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/frame"
	"github.com/gogpu/gg2d/internal/pool"
)

// ErrInvalidConfig is returned by NewRenderer for option values that make
// no sense.
var ErrInvalidConfig = errors.New("gg2d: invalid config")

// PoolPolicy decides what happens when every vertex buffer is in use.
type PoolPolicy = pool.Policy

const (
	// PoolGrow creates PipelineDepth more buffers on demand.
	PoolGrow = pool.Grow
	// PoolFixed treats exhaustion as a fatal capacity-planning bug.
	PoolFixed = pool.Fixed
)

// Config is the resolved renderer configuration.
type Config struct {
	// BufferSize is the capacity of each pooled vertex buffer in bytes.
	BufferSize int
	// InitialClients is the expected number of concurrent batchers.
	InitialClients int
	// PipelineDepth is the number of frames the display pipeline buffers.
	PipelineDepth int
	// MaxFramesInFlight bounds queued frames before ticks are skipped.
	MaxFramesInFlight int
	// PoolPolicy selects growth or failure on buffer exhaustion.
	PoolPolicy PoolPolicy
	// MaxBuffers caps pool growth. Zero means unbounded.
	MaxBuffers int
	// FirstFrameID is the ID of the first submitted frame.
	FirstFrameID uint64
	// Background is the clear colour.
	Background Color
	// Width and Height are the viewport size in points.
	Width, Height int
	// Clock returns the current time; frame timing is derived from it.
	Clock func() time.Time
	// Logger receives diagnostics.
	Logger *slog.Logger
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:        device.DefaultBufferSize,
		InitialClients:    pool.DefaultInitialClients,
		PipelineDepth:     pool.DefaultPipelineDepth,
		MaxFramesInFlight: frame.DefaultMaxInFlight,
		PoolPolicy:        PoolGrow,
		FirstFrameID:      uint64(frame.DefaultFirstID),
		Background:        Black,
		Width:             800,
		Height:            600,
		Clock:             time.Now,
	}
}

// Validate reports the first nonsensical value.
func (c Config) Validate() error {
	switch {
	case c.BufferSize < device.ColorVertexStride*3:
		return fmt.Errorf("%w: buffer size %d cannot hold one triangle", ErrInvalidConfig, c.BufferSize)
	case c.InitialClients <= 0:
		return fmt.Errorf("%w: initial clients %d", ErrInvalidConfig, c.InitialClients)
	case c.PipelineDepth <= 0:
		return fmt.Errorf("%w: pipeline depth %d", ErrInvalidConfig, c.PipelineDepth)
	case c.MaxFramesInFlight <= 0:
		return fmt.Errorf("%w: max frames in flight %d", ErrInvalidConfig, c.MaxFramesInFlight)
	case c.MaxBuffers < 0:
		return fmt.Errorf("%w: max buffers %d", ErrInvalidConfig, c.MaxBuffers)
	case c.MaxBuffers > 0 && c.MaxBuffers < c.InitialClients*c.PipelineDepth:
		return fmt.Errorf("%w: max buffers %d below pre-inflated %d", ErrInvalidConfig, c.MaxBuffers, c.InitialClients*c.PipelineDepth)
	case c.FirstFrameID == 0:
		return fmt.Errorf("%w: first frame id must be positive", ErrInvalidConfig)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: viewport %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Clock == nil:
		return fmt.Errorf("%w: nil clock", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := gg2d.NewRenderer(dev, client,
//	    gg2d.WithViewport(1280, 720),
//	    gg2d.WithPoolPolicy(gg2d.PoolFixed),
//	)
type Option func(*Config)

// WithBufferSize sets the byte capacity of each pooled vertex buffer.
// Default is 8192.
func WithBufferSize(n int) Option {
	return func(c *Config) { c.BufferSize = n }
}

// WithInitialClients sets how many concurrent batchers the pool is
// pre-inflated for. Default is 4.
func WithInitialClients(n int) Option {
	return func(c *Config) { c.InitialClients = n }
}

// WithPipelineDepth sets the display pipeline depth, which is also the pool
// growth step. Default is 3.
func WithPipelineDepth(n int) Option {
	return func(c *Config) { c.PipelineDepth = n }
}

// WithMaxFramesInFlight bounds how many frames may await the GPU before
// RenderFrame skips ticks. Default is 3.
func WithMaxFramesInFlight(n int) Option {
	return func(c *Config) { c.MaxFramesInFlight = n }
}

// WithPoolPolicy selects what happens when every vertex buffer is in use.
// Default is PoolGrow.
func WithPoolPolicy(p PoolPolicy) Option {
	return func(c *Config) { c.PoolPolicy = p }
}

// WithMaxBuffers caps the number of vertex buffers under PoolGrow.
func WithMaxBuffers(n int) Option {
	return func(c *Config) { c.MaxBuffers = n }
}

// WithFirstFrameID sets the ID of the first submitted frame. Default is 1000.
func WithFirstFrameID(id uint64) Option {
	return func(c *Config) { c.FirstFrameID = id }
}

// WithBackgroundColor sets the initial clear colour.
func WithBackgroundColor(col Color) Option {
	return func(c *Config) { c.Background = col }
}

// WithViewport sets the initial viewport size in points.
func WithViewport(width, height int) Option {
	return func(c *Config) { c.Width, c.Height = width, height }
}

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// WithLogger sets the renderer's logger. Default is the package Logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
