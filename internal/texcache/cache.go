// Package texcache maps stable texture IDs to device textures and keeps a
// texture's pixels untouched while any in-flight frame still samples them.
//
// Updating a texture that is in use copies on write: a new backing texture
// takes over the ID and the old one is released once the last frame that
// referenced it has completed.
package texcache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gg2d/device"
)

// Cache errors.
var (
	// ErrUnknownTexture signals a lookup of an ID that was never created or
	// has been destroyed.
	ErrUnknownTexture = errors.New("texcache: unknown texture")

	// ErrFrameOpen signals StartFrame while the previous frame still holds
	// marked textures.
	ErrFrameOpen = errors.New("texcache: previous frame not ended")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("texcache: closed")
)

// ID names a logical texture for its whole lifetime.
type ID uint64

// Backing is one device texture behind an ID.
type Backing struct {
	serial uint64
	tex    device.Texture

	// refs counts unfinished frames that sampled this backing.
	refs int
	// marked is set once the recording frame has referenced the backing.
	marked bool
	// orphan is set once no ID points at the backing any more.
	orphan bool
}

// Texture returns the device texture to bind.
func (b *Backing) Texture() device.Texture { return b.tex }

// Serial identifies the backing; a new serial means a new device texture.
func (b *Backing) Serial() uint64 { return b.serial }

type entry struct {
	backing *Backing
	desc    device.TextureDescriptor
}

// Cache is safe for concurrent use: CompleteFrame may run on the GPU
// completion goroutine while the recording goroutine creates, marks and
// updates textures.
type Cache struct {
	mu  sync.Mutex
	dev device.Device
	log *slog.Logger

	nextID     ID
	nextSerial uint64
	entries    map[ID]*entry
	orphans    map[*Backing]struct{}
	marked     []*Backing
	inFlight   map[uint64][]*Backing

	replacements uint64
	released     uint64
	closed       bool
}

// New returns an empty cache creating textures on dev.
func New(dev device.Device, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		dev:      dev,
		log:      log,
		nextID:   1,
		entries:  make(map[ID]*entry),
		orphans:  make(map[*Backing]struct{}),
		inFlight: make(map[uint64][]*Backing),
	}
}

// Create uploads pixels into a new texture and returns its ID.
func (c *Cache) Create(pixels []byte, width, height int, format device.PixelFormat) (ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	id := c.nextID
	desc := device.TextureDescriptor{
		Label:  fmt.Sprintf("texture-%d", id),
		Width:  width,
		Height: height,
		Format: format,
	}
	b, err := c.newBackingLocked(desc, pixels)
	if err != nil {
		return 0, err
	}
	c.nextID++
	c.entries[id] = &entry{backing: b, desc: desc}
	return id, nil
}

func (c *Cache) newBackingLocked(desc device.TextureDescriptor, pixels []byte) (*Backing, error) {
	if err := desc.Check(pixels); err != nil {
		return nil, fmt.Errorf("texcache: %s: %w", desc.Label, err)
	}
	tex, err := c.dev.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("texcache: create %s: %w", desc.Label, err)
	}
	if err := c.dev.WriteTexture(tex, pixels); err != nil {
		c.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("texcache: upload %s: %w", desc.Label, err)
	}
	c.nextSerial++
	return &Backing{serial: c.nextSerial, tex: tex}, nil
}

// MarkUsed records that the frame being recorded samples id and returns the
// backing to bind. Panics with ErrUnknownTexture for an unknown id.
func (c *Cache) MarkUsed(id ID) *Backing {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		panic(fmt.Errorf("%w: %d", ErrUnknownTexture, id))
	}
	b := e.backing
	if !b.marked {
		b.marked = true
		b.refs++
		c.marked = append(c.marked, b)
	}
	return b
}

// Current returns the backing id is bound to without marking it.
func (c *Cache) Current(id ID) (*Backing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.backing, true
}

// InUse reports whether any unfinished frame references id's backing.
func (c *Cache) InUse(id ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return ok && e.backing.refs > 0
}

// Update replaces the pixels of id. When no unfinished frame references the
// current backing it is written in place and replaced is false. Otherwise a
// new backing takes over id and replaced is true.
// Panics with ErrUnknownTexture for an unknown id.
func (c *Cache) Update(id ID, pixels []byte) (replaced bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		panic(fmt.Errorf("%w: %d", ErrUnknownTexture, id))
	}
	old := e.backing
	if old.refs == 0 {
		if err := e.desc.Check(pixels); err != nil {
			return false, fmt.Errorf("texcache: %s: %w", e.desc.Label, err)
		}
		if err := c.dev.WriteTexture(old.tex, pixels); err != nil {
			return false, fmt.Errorf("texcache: upload %s: %w", e.desc.Label, err)
		}
		return false, nil
	}

	b, err := c.newBackingLocked(e.desc, pixels)
	if err != nil {
		return false, err
	}
	e.backing = b
	old.orphan = true
	c.orphans[old] = struct{}{}
	c.replacements++
	c.log.Debug("texcache: copy on write", "id", id, "old", old.serial, "new", b.serial, "refs", old.refs)
	return true, nil
}

// Destroy forgets id. Its backing is released now when idle, otherwise when
// the last frame referencing it completes.
// Panics with ErrUnknownTexture for an unknown id.
func (c *Cache) Destroy(id ID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Errorf("%w: %d", ErrUnknownTexture, id))
	}
	delete(c.entries, id)
	b := e.backing
	if b.refs > 0 {
		b.orphan = true
		c.orphans[b] = struct{}{}
		c.mu.Unlock()
		return
	}
	c.released++
	c.mu.Unlock()

	c.dev.DestroyTexture(b.tex)
}

// StartFrame checks the previous frame was ended.
// Panics with ErrFrameOpen otherwise.
func (c *Cache) StartFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.marked) != 0 {
		panic(fmt.Errorf("%w: %d textures marked", ErrFrameOpen, len(c.marked)))
	}
}

// EndFrame files the textures marked since StartFrame under frameID.
func (c *Cache) EndFrame(frameID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.marked {
		b.marked = false
	}
	if len(c.marked) > 0 {
		c.inFlight[frameID] = c.marked
	}
	c.marked = nil
}

// CompleteFrame drops frameID's references and releases orphaned backings
// that no unfinished frame references any more. Unknown or repeated frame IDs
// are ignored.
func (c *Cache) CompleteFrame(frameID uint64) {
	var release []device.Texture

	c.mu.Lock()
	list, ok := c.inFlight[frameID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inFlight, frameID)
	for _, b := range list {
		b.refs--
		if b.refs == 0 && b.orphan {
			delete(c.orphans, b)
			release = append(release, b.tex)
			c.released++
		}
	}
	c.mu.Unlock()

	for _, tex := range release {
		c.dev.DestroyTexture(tex)
	}
}

// Close destroys every backing, live or orphaned. Call only once the device
// is idle.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var release []device.Texture
	for _, e := range c.entries {
		release = append(release, e.backing.tex)
	}
	for b := range c.orphans {
		release = append(release, b.tex)
	}
	clear(c.entries)
	clear(c.orphans)
	clear(c.inFlight)
	c.marked = nil
	c.mu.Unlock()

	for _, tex := range release {
		c.dev.DestroyTexture(tex)
	}
}
