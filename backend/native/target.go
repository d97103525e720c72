package native

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// target is a colour attachment a frame renders into.
type target struct {
	tex    hal.Texture // nil for surface views
	view   hal.TextureView
	width  int
	height int
}

func newOffscreenTarget(dev hal.Device, format gputypes.TextureFormat, w, h int) (*target, error) {
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         "gg2d_offscreen",
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create offscreen texture: %w", err)
	}
	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "gg2d_offscreen_view",
	})
	if err != nil {
		dev.DestroyTexture(tex)
		return nil, fmt.Errorf("create offscreen view: %w", err)
	}
	return &target{tex: tex, view: view, width: w, height: h}, nil
}

func (t *target) destroy(dev hal.Device) {
	if t.tex == nil {
		return
	}
	dev.DestroyTextureView(t.view)
	dev.DestroyTexture(t.tex)
	t.tex, t.view = nil, nil
}

// SetSurfaceTarget makes the next frame render into view, typically the
// current swapchain texture acquired by the host. The view is consumed by
// that frame: without a fresh call the following frame falls back to the
// offscreen target, or reports device.ErrNoDrawable when there is none.
// A nil view clears a pending surface target.
func (d *Device) SetSurfaceTarget(view hal.TextureView, width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if view == nil {
		d.surface = nil
		return
	}
	d.surface = &target{view: view, width: width, height: height}
}

// acquireTarget returns the target for the next frame.
func (d *Device) acquireTarget() *target {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.surface; t != nil {
		d.surface = nil
		return t
	}
	return d.offscreen
}

// Resize recreates the offscreen target. Frames in flight keep rendering into
// the old target until they complete.
func (d *Device) Resize(width, height int) error {
	d.frames.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offscreen != nil && d.offscreen.width == width && d.offscreen.height == height {
		return nil
	}
	t, err := newOffscreenTarget(d.dev, d.format, width, height)
	if err != nil {
		return fmt.Errorf("native: %w", err)
	}
	if d.offscreen != nil {
		d.offscreen.destroy(d.dev)
	}
	d.offscreen = t
	return nil
}

// Snapshot waits for in-flight frames and reads the offscreen target back
// into an RGBA image. It returns nil when the device has no offscreen target.
func (d *Device) Snapshot() (*image.RGBA, error) {
	d.frames.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.offscreen
	if t == nil {
		return nil, nil //nolint:nilnil // no offscreen target is not an error
	}
	w, h := uint32(t.width), uint32(t.height)

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "gg2d_snapshot_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gg2d_snapshot"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	// BytesPerRow must be aligned to 256 bytes.
	bytesPerRow := w * 4
	const copyPitchAlignment = 256
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "gg2d_snapshot_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	fence, err := d.dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	defer d.dev.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("native: submit: %w", err)
	}
	ok, err := d.dev.Wait(fence, 1, d.cfg.FenceTimeout)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: ok=%v err=%w", ErrFence, ok, err)
	}

	readback := make([]byte, stagingSize)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("native: readback: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	bgra := d.format == gputypes.TextureFormatBGRA8Unorm
	for row := 0; row < t.height; row++ {
		src := readback[row*int(alignedBytesPerRow):][:bytesPerRow]
		dst := img.Pix[row*img.Stride:][:bytesPerRow]
		copy(dst, src)
		if bgra {
			for i := 0; i < len(dst); i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return img, nil
}
