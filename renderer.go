package gg2d

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/batch"
	"github.com/gogpu/gg2d/internal/frame"
	"github.com/gogpu/gg2d/internal/pipeline"
	"github.com/gogpu/gg2d/internal/pool"
	"github.com/gogpu/gg2d/internal/texcache"
	"github.com/gogpu/gg2d/internal/text"
)

// Renderer errors.
var (
	// ErrNoFrame signals a draw call outside Client.Frame.
	ErrNoFrame = errors.New("gg2d: draw call outside a frame")

	// ErrBusy is returned by Close while frames still await the GPU.
	ErrBusy = errors.New("gg2d: frames still in flight")

	// ErrClosed is returned by RenderFrame after Close.
	ErrClosed = errors.New("gg2d: renderer closed")
)

// Renderer drives a Client frame by frame on a Device. It owns the vertex
// buffer pool, the texture cache, the batchers, the pipeline selector, the
// frame coordinator and the fonts; nothing is global.
//
// RenderFrame, Resize and Close must be called from one goroutine. Frame
// completion may be reported from any goroutine.
type Renderer struct {
	cfg    Config
	dev    device.Device
	client Client
	log    *slog.Logger

	buffers  *pool.Pool[device.Buffer]
	textures *texcache.Cache
	coord    *frame.Coordinator
	selector *pipeline.Selector

	points    *batch.Batcher[ColorVertex]
	lines     *batch.Batcher[ColorVertex]
	triangles *batch.Batcher[ColorVertex]
	rects     *batch.Batcher[TexturedVertex]

	flatDrawer     batch.Drawer
	texturedDrawer batch.Drawer
	// rectTexture is the backing the pending rect batch samples.
	rectTexture *texcache.Backing

	fonts     *text.Library
	textLayer *text.Layer
	textTex   TextureID

	stream     device.CommandStream
	background Color
	width      float32
	height     float32

	start     time.Time
	lastFrame time.Time
	delta     time.Duration
	timestamp time.Duration

	closed atomic.Bool
}

// NewRenderer creates a renderer on dev and runs client.Setup.
//
// The vertex buffer pool is pre-inflated immediately; a device failure
// there, or a Setup error, is returned.
func NewRenderer(dev device.Device, client Client, opts ...Option) (*Renderer, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:        cfg,
		dev:        dev,
		client:     client,
		log:        cfg.Logger,
		background: cfg.Background,
		width:      float32(cfg.Width),
		height:     float32(cfg.Height),
		fonts:      text.NewLibrary(),
		textLayer:  text.NewLayer(cfg.Width, cfg.Height),
	}

	var err error
	r.buffers, err = pool.New(func(id uint64) (device.Buffer, error) {
		return dev.CreateBuffer(fmt.Sprintf("vertex-buffer-%d", id), cfg.BufferSize)
	}, pool.Config{
		InitialClients: cfg.InitialClients,
		PipelineDepth:  cfg.PipelineDepth,
		Policy:         cfg.PoolPolicy,
		MaxResources:   cfg.MaxBuffers,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("gg2d: vertex buffer pool: %w", err)
	}
	r.textures = texcache.New(dev, cfg.Logger)

	if err := r.initBatchers(); err != nil {
		r.buffers.Close(dev.DestroyBuffer)
		return nil, err
	}

	r.coord = frame.New(frame.Config{
		FirstID:     frame.ID(cfg.FirstFrameID),
		MaxInFlight: cfg.MaxFramesInFlight,
		Logger:      cfg.Logger,
	}, poolParticipant{r.buffers}, r.textures)

	r.start = cfg.Clock()
	r.lastFrame = r.start

	if err := client.Setup(r); err != nil {
		r.release()
		return nil, fmt.Errorf("gg2d: client setup: %w", err)
	}
	r.log.Info("gg2d: renderer created",
		"viewport", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"buffers", r.buffers.Stats().Total,
		"bufferSize", cfg.BufferSize)
	return r, nil
}

func (r *Renderer) initBatchers() error {
	var err error
	size := r.cfg.BufferSize
	if r.points, err = batch.New[ColorVertex](r.buffers, device.PrimitivePoint, size); err != nil {
		return err
	}
	if r.lines, err = batch.New[ColorVertex](r.buffers, device.PrimitiveLine, size); err != nil {
		return err
	}
	if r.triangles, err = batch.New[ColorVertex](r.buffers, device.PrimitiveTriangle, size); err != nil {
		return err
	}
	if r.rects, err = batch.New[TexturedVertex](r.buffers, device.PrimitiveTriangle, size); err != nil {
		return err
	}

	r.flatDrawer = batch.DrawerFunc(func(buf device.Buffer, kind device.Primitive, start, count int) {
		r.stream.SetVertexBuffer(buf, (start+count)*device.ColorVertexStride)
		r.stream.DrawPrimitives(kind, start, count)
	})
	r.texturedDrawer = batch.DrawerFunc(func(buf device.Buffer, kind device.Primitive, start, count int) {
		r.stream.SetTexture(r.rectTexture.Texture())
		r.stream.SetVertexBuffer(buf, (start+count)*device.TexturedVertexStride)
		r.stream.DrawPrimitives(kind, start, count)
	})

	r.selector = pipeline.NewSelector(r.cfg.Logger)
	r.selector.Register(device.PipelineFlat,
		pipeline.FlushFunc(r.FlushPoints),
		pipeline.FlushFunc(r.FlushLines),
		pipeline.FlushFunc(r.FlushTriangles),
	)
	r.selector.Register(device.PipelineTextured, pipeline.FlushFunc(r.FlushTexturedRects))
	return nil
}

// poolParticipant adapts the buffer pool to the frame coordinator. The
// coordinator enforces the in-flight bound itself.
type poolParticipant struct {
	p *pool.Pool[device.Buffer]
}

func (pp poolParticipant) StartFrame()             { pp.p.StartFrame(0) }
func (pp poolParticipant) EndFrame(id uint64)      { pp.p.EndFrame(id) }
func (pp poolParticipant) CompleteFrame(id uint64) { pp.p.CompleteFrame(id) }

// RenderFrame records and submits one frame. It returns false without error
// when the tick was skipped because too many frames await the GPU or the
// device had no drawable.
func (r *Renderer) RenderFrame() (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	if !r.coord.StartFrame() {
		return false, nil
	}

	stream, err := r.dev.BeginFrame(r.background)
	if err != nil {
		r.coord.Abandon()
		if errors.Is(err, device.ErrNoDrawable) {
			r.log.Warn("gg2d: no drawable, frame abandoned")
			return false, nil
		}
		return false, fmt.Errorf("gg2d: begin frame: %w", err)
	}

	now := r.cfg.Clock()
	r.delta = now.Sub(r.lastFrame)
	r.lastFrame = now
	r.timestamp = now.Sub(r.start)

	r.stream = stream
	r.selector.Bind(stream)
	stream.SetViewport(r.width, r.height)
	r.textLayer.Reset()

	r.client.Frame(r)

	r.drawTextLayer()
	r.selector.Reset()
	r.selector.Bind(nil)
	r.stream = nil

	id := r.coord.EndFrame()
	stream.AddCompletedHandler(func() {
		r.coord.CompleteFrame(id)
	})
	if err := stream.Commit(); err != nil {
		// Nothing reached the GPU; release the frame's resources now.
		r.coord.CompleteFrame(id)
		return false, fmt.Errorf("gg2d: commit frame %d: %w", id, err)
	}
	return true, nil
}

// drawTextLayer uploads the frame's text and draws it over everything else.
func (r *Renderer) drawTextLayer() {
	if !r.textLayer.Dirty() {
		return
	}
	b := r.textLayer.Bounds()
	if r.textTex != 0 {
		cur, ok := r.textures.Current(texcache.ID(r.textTex))
		if ok && (cur.Texture().Width() != b.Dx() || cur.Texture().Height() != b.Dy()) {
			r.textures.Destroy(texcache.ID(r.textTex))
			r.textTex = 0
		}
	}
	if r.textTex == 0 {
		id, err := r.textures.Create(r.textLayer.Pixels(), b.Dx(), b.Dy(), device.FormatRGBA8)
		if err != nil {
			panic(fmt.Errorf("gg2d: text layer: %w", err))
		}
		r.textTex = TextureID(id)
	} else if _, err := r.textures.Update(texcache.ID(r.textTex), r.textLayer.Pixels()); err != nil {
		panic(fmt.Errorf("gg2d: text layer: %w", err))
	}
	r.DrawTexturedRect(r.textTex, 0, 0, r.width, r.height)
}

// Resize changes the viewport. Takes effect from the next frame.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.width, r.height = float32(width), float32(height)
	r.textLayer.Resize(width, height)
}

// Stats is a snapshot of renderer state.
type Stats struct {
	Frames           frame.Stats
	Buffers          pool.Stats
	Textures         texcache.Stats
	PipelineSwitches uint64
	Fonts            int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("%v %v %v switches=%d fonts=%d",
		s.Frames, s.Buffers, s.Textures, s.PipelineSwitches, s.Fonts)
}

// Stats returns current counters. Safe to call from any goroutine except
// for PipelineSwitches, which is only exact between frames.
func (r *Renderer) Stats() Stats {
	return Stats{
		Frames:           r.coord.Stats(),
		Buffers:          r.buffers.Stats(),
		Textures:         r.textures.Stats(),
		PipelineSwitches: r.selector.Switches(),
		Fonts:            r.fonts.Len(),
	}
}

// InFlight returns the number of submitted frames the GPU has not finished.
func (r *Renderer) InFlight() int { return r.coord.InFlight() }

// WaitIdle blocks until every submitted frame has completed or ctx ends.
func (r *Renderer) WaitIdle(ctx context.Context) error {
	if r.coord.InFlight() == 0 {
		return nil
	}
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if r.coord.InFlight() == 0 {
				return nil
			}
		}
	}
}

// Close releases every buffer, texture and font. It fails with ErrBusy
// while frames are in flight; see WaitIdle.
func (r *Renderer) Close() error {
	if n := r.coord.InFlight(); n > 0 {
		return fmt.Errorf("%w: %d", ErrBusy, n)
	}
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.release()
	r.log.Info("gg2d: renderer closed")
	return nil
}

func (r *Renderer) release() {
	r.closed.Store(true)
	r.buffers.Close(r.dev.DestroyBuffer)
	r.textures.Close()
	r.fonts.Close()
}

// Run renders at fps frames per second until ctx is done or a frame fails.
// Skipped ticks are not retried. A cancelled ctx is not an error.
func (r *Renderer) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalidConfig, fps)
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.RenderFrame(); err != nil {
				return err
			}
		}
	}
}

func (r *Renderer) mustRecord() {
	if r.stream == nil {
		panic(ErrNoFrame)
	}
}

func push[V any](b *batch.Batcher[V], d batch.Drawer, vs ...V) {
	if err := b.Push(d, vs); err != nil {
		panic(fmt.Errorf("gg2d: %w", err))
	}
}
