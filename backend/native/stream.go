package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gg2d/device"
)

// ErrCommitted is returned by Commit on a stream that was already committed.
var ErrCommitted = errors.New("native: stream already committed")

// stream records one frame into a single render pass.
type stream struct {
	d      *Device
	serial uint64
	target *target

	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	uniform   hal.Buffer
	flatGroup hal.BindGroup
	texGroups map[*Texture]hal.BindGroup

	pipeline   device.Pipeline
	texture    *Texture
	bound      hal.RenderPipeline
	boundGroup hal.BindGroup

	handlers  []func()
	committed bool
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame(clear device.Color) (device.CommandStream, error) {
	if d.closed.Load() {
		return nil, device.ErrClosed
	}
	t := d.acquireTarget()
	if t == nil {
		return nil, device.ErrNoDrawable
	}

	s := &stream{
		d:         d,
		serial:    d.serial.Add(1),
		target:    t,
		texGroups: make(map[*Texture]hal.BindGroup),
	}
	if err := s.begin(clear); err != nil {
		s.release()
		return nil, err
	}
	s.SetViewport(float32(t.width), float32(t.height))
	return s, nil
}

func (s *stream) begin(clear device.Color) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	s.uniform, err = d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("gg2d_viewport_%d", s.serial),
		Size:  viewportUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create viewport uniform: %w", err)
	}
	s.flatGroup, err = d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  fmt.Sprintf("gg2d_flat_bind_%d", s.serial),
		Layout: d.pipelines.flatLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: s.uniform.NativeHandle(), Offset: 0, Size: viewportUniformSize,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create flat bind group: %w", err)
	}

	s.encoder, err = d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("gg2d_frame_encoder_%d", s.serial),
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := s.encoder.BeginEncoding(fmt.Sprintf("gg2d_frame_%d", s.serial)); err != nil {
		s.encoder = nil
		return fmt.Errorf("native: begin encoding: %w", err)
	}

	// Clear to the premultiplied background.
	s.pass = s.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "gg2d_frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    s.target.view,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(clear.R * clear.A),
				G: float64(clear.G * clear.A),
				B: float64(clear.B * clear.A),
				A: float64(clear.A),
			},
		}},
	})
	return nil
}

// SetViewport implements device.CommandStream. The viewport applies to the
// whole frame; the last call before Commit wins.
func (s *stream) SetViewport(width, height float32) {
	s.checkOpen()
	var data [viewportUniformSize]byte
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(width))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(height))
	s.d.queue.WriteBuffer(s.uniform, 0, data[:])
}

// SetPipeline implements device.CommandStream.
func (s *stream) SetPipeline(p device.Pipeline) {
	s.checkOpen()
	s.pipeline = p
}

// SetVertexBuffer implements device.CommandStream. The staging bytes are
// uploaded here; the pool guarantees the buffer is not rewritten until the
// frame completes.
func (s *stream) SetVertexBuffer(buf device.Buffer, length int) {
	s.checkOpen()
	nb := mustBuffer(buf)
	if length > 0 {
		s.d.queue.WriteBuffer(nb.buf, 0, nb.data[:length])
	}
	s.pass.SetVertexBuffer(0, nb.buf, 0)
}

// SetTexture implements device.CommandStream.
func (s *stream) SetTexture(tex device.Texture) {
	s.checkOpen()
	s.texture = mustTexture(tex)
}

// DrawPrimitives implements device.CommandStream.
func (s *stream) DrawPrimitives(kind device.Primitive, start, count int) {
	s.checkOpen()
	if s.pipeline == device.PipelineNone {
		panic("native: draw without pipeline")
	}
	if p := s.d.pipelines.forDraw(s.pipeline, kind); p != s.bound {
		s.pass.SetPipeline(p)
		s.bound = p
		s.boundGroup = nil
	}

	group := s.flatGroup
	if s.pipeline == device.PipelineTextured {
		if s.texture == nil {
			panic("native: textured draw without texture")
		}
		group = s.textureGroup(s.texture)
	}
	if group != s.boundGroup {
		s.pass.SetBindGroup(0, group, nil)
		s.boundGroup = group
	}
	s.pass.Draw(uint32(count), 1, uint32(start), 0)
}

// textureGroup returns the frame's bind group for t, creating it on first use.
func (s *stream) textureGroup(t *Texture) hal.BindGroup {
	if g, ok := s.texGroups[t]; ok {
		return g
	}
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	g, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  fmt.Sprintf("gg2d_textured_bind_%d_%s", s.serial, t.desc.Label),
		Layout: d.pipelines.texturedLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: s.uniform.NativeHandle(), Offset: 0, Size: viewportUniformSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: uintptr(t.view.NativeHandle()),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: uintptr(d.pipelines.sampler.NativeHandle()),
			}},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("native: create textured bind group for %s: %v", t.desc.Label, err))
	}
	s.texGroups[t] = g
	return g
}

// AddCompletedHandler implements device.CommandStream.
func (s *stream) AddCompletedHandler(fn func()) {
	s.checkOpen()
	s.handlers = append(s.handlers, fn)
}

// Commit implements device.CommandStream. The completion handlers run on a
// separate goroutine once the frame's fence signals. When Commit fails no
// handler runs.
func (s *stream) Commit() error {
	if s.committed {
		return ErrCommitted
	}
	s.committed = true

	d := s.d
	s.pass.End()
	cmdBuf, err := s.encoder.EndEncoding()
	s.encoder = nil
	if err != nil {
		s.release()
		return fmt.Errorf("native: end encoding: %w", err)
	}

	d.mu.Lock()
	fence, err := d.dev.CreateFence()
	if err == nil {
		err = d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1)
		if err != nil {
			d.dev.DestroyFence(fence)
		}
	}
	if err != nil {
		d.dev.FreeCommandBuffer(cmdBuf)
		d.mu.Unlock()
		s.release()
		return fmt.Errorf("native: submit frame %d: %w", s.serial, err)
	}
	d.mu.Unlock()

	d.inFlight.Add(1)
	d.frames.Add(1)
	go s.await(cmdBuf, fence)
	return nil
}

// await blocks until the GPU has executed the frame, then releases the
// frame's transient objects and runs the completion handlers.
func (s *stream) await(cmdBuf hal.CommandBuffer, fence hal.Fence) {
	d := s.d
	defer d.frames.Done()

	for {
		ok, err := d.dev.Wait(fence, 1, d.cfg.FenceTimeout)
		if err != nil {
			d.log.Warn("native: fence wait failed", "frame", s.serial, "error", err)
			break
		}
		if ok {
			break
		}
		d.log.Warn("native: frame still executing", "frame", s.serial, "timeout", d.cfg.FenceTimeout)
	}

	d.mu.Lock()
	d.dev.FreeCommandBuffer(cmdBuf)
	d.dev.DestroyFence(fence)
	d.mu.Unlock()
	s.release()

	d.inFlight.Add(-1)
	for _, fn := range s.handlers {
		fn()
	}
}

// release destroys the frame's transient objects.
func (s *stream) release() {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.encoder != nil {
		s.encoder.DiscardEncoding()
		s.encoder = nil
	}
	for t, g := range s.texGroups {
		d.dev.DestroyBindGroup(g)
		delete(s.texGroups, t)
	}
	if s.flatGroup != nil {
		d.dev.DestroyBindGroup(s.flatGroup)
		s.flatGroup = nil
	}
	if s.uniform != nil {
		d.dev.DestroyBuffer(s.uniform)
		s.uniform = nil
	}
}

func (s *stream) checkOpen() {
	if s.committed {
		panic("native: stream used after Commit")
	}
}
