// Package native implements device.Device on top of gogpu/wgpu's hardware
// abstraction layer.
//
// A Device renders every frame as a single render pass, either into an
// offscreen target owned by the device or into a surface view supplied by the
// host each tick with SetSurfaceTarget. Submission is asynchronous: Commit
// returns as soon as the command buffer is queued and a per-frame goroutine
// waits on the frame's fence before running the completion handlers.
//
// Three ways to obtain a Device:
//
//	dev, err := native.OpenBackend(gputypes.BackendVulkan, native.Config{Width: 800, Height: 600})
//	dev, err := native.Open(noop.API{}, cfg)            // any hal backend
//	dev, err := native.FromProvider(app.GPUContextProvider(), cfg)
//
// The package also registers itself with the device registry as "native".
package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gg2d/device"
)

// Errors returned by the native backend.
var (
	// ErrShader is returned when a built-in shader fails naga validation.
	ErrShader = errors.New("native: shader compilation failed")

	// ErrNoAdapter is returned when the backend exposes no adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter")

	// ErrBackendUnavailable is returned by OpenBackend for a backend that was
	// not compiled in.
	ErrBackendUnavailable = errors.New("native: backend not available")

	// ErrProvider is returned by FromProvider when the host does not expose
	// its hal device and queue.
	ErrProvider = errors.New("native: provider does not expose HAL types")

	// ErrFence is returned when waiting on a frame's fence fails or times out.
	ErrFence = errors.New("native: fence wait failed")
)

// DefaultFenceTimeout bounds the completion wait of a single frame.
const DefaultFenceTimeout = 5 * time.Second

// Config controls device creation.
type Config struct {
	// Width and Height size the offscreen target in pixels. When either is
	// zero the device has no offscreen target and renders only into surface
	// views passed to SetSurfaceTarget.
	Width, Height int

	// SPIRV hands naga-compiled SPIR-V to the device instead of WGSL.
	// OpenBackend sets it for Vulkan.
	SPIRV bool

	// FenceTimeout bounds each frame's completion wait. Zero means
	// DefaultFenceTimeout.
	FenceTimeout time.Duration

	// Logger receives backend diagnostics. Nil discards.
	Logger *slog.Logger
}

// API creates hal instances. noop.API and every registered hal backend
// satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Device is a device.Device backed by a hal device and queue.
type Device struct {
	cfg Config
	log *slog.Logger

	instance hal.Instance // nil for provider devices
	owned    bool
	dev      hal.Device
	queue    hal.Queue

	format    gputypes.TextureFormat
	pipelines *pipelineSet

	// mu serialises hal object creation and destruction between the
	// recording goroutine and the per-frame completion goroutines.
	mu sync.Mutex

	offscreen *target
	surface   *target

	serial   atomic.Uint64
	inFlight atomic.Int32
	frames   sync.WaitGroup
	closed   atomic.Bool
}

// Open creates an instance from api, opens its preferred adapter and builds
// the pipelines.
func Open(api API, cfg Config) (*Device, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d, err := newDevice(openDev.Device, openDev.Queue, gputypes.TextureFormatBGRA8Unorm, cfg)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.log.Info("native: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// OpenBackend opens a device on a hal backend registered by a blank import,
// such as github.com/gogpu/wgpu/hal/vulkan.
func OpenBackend(backend gputypes.Backend, cfg Config) (*Device, error) {
	api, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, backend)
	}
	if backend == gputypes.BackendVulkan {
		cfg.SPIRV = true
	}
	return Open(api, cfg)
}

// FromProvider shares the hal device of a host application. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. The host keeps ownership: Close does not destroy the device.
func FromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}

	format := provider.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	d, err := newDevice(dev, queue, format, cfg)
	if err != nil {
		return nil, err
	}
	d.log.Info("native: using host device", "format", format)
	return d, nil
}

func newDevice(dev hal.Device, queue hal.Queue, format gputypes.TextureFormat, cfg Config) (*Device, error) {
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	pipelines, err := newPipelineSet(dev, format, cfg.SPIRV)
	if err != nil {
		return nil, fmt.Errorf("native: %w", err)
	}
	d := &Device{
		cfg:       cfg,
		log:       log,
		dev:       dev,
		queue:     queue,
		format:    format,
		pipelines: pipelines,
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		d.offscreen, err = newOffscreenTarget(dev, format, cfg.Width, cfg.Height)
		if err != nil {
			pipelines.destroy()
			return nil, fmt.Errorf("native: %w", err)
		}
	}
	return d, nil
}

// Format returns the colour format of render targets.
func (d *Device) Format() gputypes.TextureFormat { return d.format }

// HalDevice returns the underlying hal device.
func (d *Device) HalDevice() hal.Device { return d.dev }

// InFlight returns the number of committed frames whose fence has not yet
// been observed.
func (d *Device) InFlight() int { return int(d.inFlight.Load()) }

// Buffer is a vertex buffer with a CPU staging copy. The staging bytes are
// uploaded when the buffer is bound.
type Buffer struct {
	label string
	buf   hal.Buffer
	data  []byte
}

// Label implements device.Buffer.
func (b *Buffer) Label() string { return b.label }

// Size implements device.Buffer.
func (b *Buffer) Size() int { return len(b.data) }

// Contents implements device.Buffer.
func (b *Buffer) Contents() []byte { return b.data }

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(label string, size int) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("native: buffer %s: invalid size %d", label, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create %s: %w", label, err)
	}
	return &Buffer{label: label, buf: buf, data: make([]byte, size)}, nil
}

// DestroyBuffer implements device.Device.
func (d *Device) DestroyBuffer(b device.Buffer) {
	nb := mustBuffer(b)
	d.mu.Lock()
	defer d.mu.Unlock()
	if nb.buf != nil {
		d.dev.DestroyBuffer(nb.buf)
		nb.buf = nil
	}
}

// Texture is a sampled hal texture and its default view.
type Texture struct {
	desc device.TextureDescriptor
	tex  hal.Texture
	view hal.TextureView
}

// Label implements device.Texture.
func (t *Texture) Label() string { return t.desc.Label }

// Width implements device.Texture.
func (t *Texture) Width() int { return t.desc.Width }

// Height implements device.Texture.
func (t *Texture) Height() int { return t.desc.Height }

// Format implements device.Texture.
func (t *Texture) Format() device.PixelFormat { return t.desc.Format }

// textureFormat maps a device pixel format to its hal equivalent.
func textureFormat(f device.PixelFormat) gputypes.TextureFormat {
	if f == device.FormatBGRA8 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	if err := desc.Check(nil); err != nil {
		return nil, err
	}
	format := textureFormat(desc.Format)

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create texture view %s: %w", desc.Label, err)
	}
	return &Texture{desc: desc, tex: tex, view: view}, nil
}

// WriteTexture implements device.Device.
func (d *Device) WriteTexture(tex device.Texture, pixels []byte) error {
	t := mustTexture(tex)
	if err := t.desc.Check(pixels); err != nil {
		return err
	}
	w, h := uint32(t.desc.Width), uint32(t.desc.Height)
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
		},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

// DestroyTexture implements device.Device.
func (d *Device) DestroyTexture(tex device.Texture) {
	t := mustTexture(tex)
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.view != nil {
		d.dev.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		d.dev.DestroyTexture(t.tex)
		t.tex = nil
	}
}

// Close waits for in-flight frames and releases every object the device
// created. Devices obtained with Open also destroy the hal device and
// instance. Close is idempotent.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.frames.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offscreen != nil {
		d.offscreen.destroy(d.dev)
		d.offscreen = nil
	}
	d.surface = nil
	d.pipelines.destroy()
	if d.owned {
		d.dev.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
		d.log.Info("native: device closed")
	}
	return nil
}

func mustBuffer(b device.Buffer) *Buffer {
	nb, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("native: foreign buffer %T", b))
	}
	return nb
}

func mustTexture(t device.Texture) *Texture {
	nt, ok := t.(*Texture)
	if !ok {
		panic(fmt.Sprintf("native: foreign texture %T", t))
	}
	return nt
}
