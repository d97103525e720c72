package recording

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gg2d/device"
)

// ErrCommitted is returned by Commit on a stream that was already committed.
var ErrCommitted = errors.New("recording: stream already committed")

func init() {
	device.Register("recording", func(device.OpenOptions) (device.Device, func() error, error) {
		d := NewDevice()
		return d, func() error { d.CompleteAll(); return nil }, nil
	})
}

// Buffer is a recorded vertex buffer backed by a byte slice.
type Buffer struct {
	label string
	data  []byte

	destroyed bool
}

// Label implements device.Buffer.
func (b *Buffer) Label() string { return b.label }

// Size implements device.Buffer.
func (b *Buffer) Size() int { return len(b.data) }

// Contents implements device.Buffer.
func (b *Buffer) Contents() []byte { return b.data }

// Texture is a recorded texture keeping a copy of its last upload.
type Texture struct {
	dev    *Device
	desc   device.TextureDescriptor
	pixels []byte
	writes int

	destroyed bool
}

// Label implements device.Texture.
func (t *Texture) Label() string { return t.desc.Label }

// Width implements device.Texture.
func (t *Texture) Width() int { return t.desc.Width }

// Height implements device.Texture.
func (t *Texture) Height() int { return t.desc.Height }

// Format implements device.Texture.
func (t *Texture) Format() device.PixelFormat { return t.desc.Format }

// Pixels returns a copy of the last uploaded pixels.
func (t *Texture) Pixels() []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return append([]byte(nil), t.pixels...)
}

// Writes returns how many uploads the texture received.
func (t *Texture) Writes() int {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.writes
}

// Destroyed reports whether DestroyTexture was called.
func (t *Texture) Destroyed() bool {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.destroyed
}

// Frame is one recorded command stream.
type Frame struct {
	// Index is the position of the frame in Device.Frames.
	Index int
	// Clear is the clear colour passed to BeginFrame.
	Clear device.Color
	// Commands holds everything recorded, in order.
	Commands []Command

	dev       *Device
	handlers  []func()
	committed bool
	completed bool
}

// SetViewport implements device.CommandStream.
func (f *Frame) SetViewport(width, height float32) {
	f.record(SetViewportCommand{Width: width, Height: height})
}

// SetPipeline implements device.CommandStream.
func (f *Frame) SetPipeline(p device.Pipeline) {
	f.record(SetPipelineCommand{Pipeline: p})
}

// SetVertexBuffer implements device.CommandStream.
func (f *Frame) SetVertexBuffer(buf device.Buffer, length int) {
	data := append([]byte(nil), buf.Contents()[:length]...)
	f.record(SetVertexBufferCommand{Buffer: buf.Label(), Length: length, Data: data})
}

// SetTexture implements device.CommandStream.
func (f *Frame) SetTexture(tex device.Texture) {
	f.record(SetTextureCommand{Texture: tex.Label()})
}

// DrawPrimitives implements device.CommandStream.
func (f *Frame) DrawPrimitives(kind device.Primitive, start, count int) {
	f.record(DrawCommand{Kind: kind, Start: start, Count: count})
}

// AddCompletedHandler implements device.CommandStream.
func (f *Frame) AddCompletedHandler(fn func()) {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.handlers = append(f.handlers, fn)
}

// Commit implements device.CommandStream.
func (f *Frame) Commit() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()

	if f.committed {
		return fmt.Errorf("%w: frame %d", ErrCommitted, f.Index)
	}
	f.committed = true
	f.Commands = append(f.Commands, CommitCommand{})
	return nil
}

func (f *Frame) record(c Command) {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()

	if f.committed {
		panic(fmt.Sprintf("recording: %v after commit of frame %d", c.Type(), f.Index))
	}
	f.Commands = append(f.Commands, c)
}

// Committed reports whether Commit was called.
func (f *Frame) Committed() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.committed
}

// Completed reports whether the frame's handlers have run.
func (f *Frame) Completed() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.completed
}

// Count returns how many commands of type t the frame recorded.
func (f *Frame) Count(t CommandType) int {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()

	n := 0
	for _, c := range f.Commands {
		if c.Type() == t {
			n++
		}
	}
	return n
}

// Types returns the command types in recording order.
func (f *Frame) Types() []CommandType {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()

	types := make([]CommandType, len(f.Commands))
	for i, c := range f.Commands {
		types[i] = c.Type()
	}
	return types
}

// Device is an in-memory device.Device. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	buffers  []*Buffer
	textures []*Texture
	frames   []*Frame

	noDrawable  bool
	failBuffers bool
}

// NewDevice returns an empty recording device.
func NewDevice() *Device {
	return &Device{}
}

// SetNoDrawable makes BeginFrame fail with device.ErrNoDrawable while on is
// true.
func (d *Device) SetNoDrawable(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noDrawable = on
}

// FailBufferCreation makes CreateBuffer fail while on is true.
func (d *Device) FailBufferCreation(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failBuffers = on
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(label string, size int) (device.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failBuffers {
		return nil, fmt.Errorf("recording: create buffer %s: out of memory", label)
	}
	b := &Buffer{label: label, data: make([]byte, size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

// DestroyBuffer implements device.Device.
func (d *Device) DestroyBuffer(b device.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rb, ok := b.(*Buffer); ok {
		rb.destroyed = true
	}
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	if err := desc.Check(nil); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &Texture{dev: d, desc: desc}
	d.textures = append(d.textures, t)
	return t, nil
}

// WriteTexture implements device.Device.
func (d *Device) WriteTexture(tex device.Texture, pixels []byte) error {
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("%w: foreign texture %T", device.ErrInvalidTexture, tex)
	}
	if err := t.desc.Check(pixels); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.destroyed {
		return fmt.Errorf("%w: %s destroyed", device.ErrInvalidTexture, t.desc.Label)
	}
	t.pixels = append(t.pixels[:0], pixels...)
	t.writes++
	return nil
}

// DestroyTexture implements device.Device. Destroying a texture twice
// panics.
func (d *Device) DestroyTexture(tex device.Texture) {
	t, ok := tex.(*Texture)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.destroyed {
		panic("recording: texture " + t.desc.Label + " destroyed twice")
	}
	t.destroyed = true
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame(clear device.Color) (device.CommandStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.noDrawable {
		return nil, device.ErrNoDrawable
	}
	f := &Frame{Index: len(d.frames), Clear: clear, dev: d}
	d.frames = append(d.frames, f)
	return f, nil
}

// Complete runs the completion handlers of the frame at index, as the GPU
// would once it finished the frame. Completing a frame twice or before it
// was committed does nothing.
func (d *Device) Complete(index int) {
	d.mu.Lock()
	if index < 0 || index >= len(d.frames) {
		d.mu.Unlock()
		return
	}
	f := d.frames[index]
	if !f.committed || f.completed {
		d.mu.Unlock()
		return
	}
	f.completed = true
	handlers := f.handlers
	f.handlers = nil
	d.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// CompleteAll completes every committed frame in order.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	n := len(d.frames)
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		d.Complete(i)
	}
}

// Frames returns every recorded frame.
func (d *Device) Frames() []*Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Frame(nil), d.frames...)
}

// Frame returns the frame at index.
func (d *Device) Frame(index int) *Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames[index]
}

// Buffers returns every buffer created so far.
func (d *Device) Buffers() []*Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Buffer(nil), d.buffers...)
}

// Textures returns every texture created so far, destroyed ones included.
func (d *Device) Textures() []*Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// LiveTextures returns how many textures have not been destroyed.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, t := range d.textures {
		if !t.destroyed {
			n++
		}
	}
	return n
}

// LiveBuffers returns how many buffers have not been destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, b := range d.buffers {
		if !b.destroyed {
			n++
		}
	}
	return n
}
