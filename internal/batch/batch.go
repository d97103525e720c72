// Package batch accumulates fixed-size vertices into pooled buffers and turns
// each full or flushed buffer into exactly one draw call.
package batch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/pool"
)

// ErrTooLarge is returned by Add and Push when a single call holds more
// vertices than one buffer can.
var ErrTooLarge = errors.New("batch: element group larger than one buffer")

// ErrVertexType is returned by New for vertex types without a fixed size.
var ErrVertexType = errors.New("batch: vertex type has no fixed binary size")

// Drawer issues the draw call for a flushed buffer.
// start and count are in vertices; only the first count*stride bytes of buf
// hold valid data.
type Drawer interface {
	Draw(buf device.Buffer, kind device.Primitive, start, count int)
}

// DrawerFunc adapts a function to Drawer.
type DrawerFunc func(buf device.Buffer, kind device.Primitive, start, count int)

// Draw calls f.
func (f DrawerFunc) Draw(buf device.Buffer, kind device.Primitive, start, count int) {
	f(buf, kind, start, count)
}

// Batcher collects vertices of type V for one primitive kind.
//
// A Batcher is owned by the recording goroutine and is not safe for
// concurrent use. The pool it draws from is.
type Batcher[V any] struct {
	pool     *pool.Pool[device.Buffer]
	kind     device.Primitive
	stride   int
	capacity int

	cur  *pool.Resource[device.Buffer]
	used int
}

// New creates a batcher for kind drawing buffers of bufferSize bytes from p.
func New[V any](p *pool.Pool[device.Buffer], kind device.Primitive, bufferSize int) (*Batcher[V], error) {
	var zero V
	stride := binary.Size(zero)
	if stride <= 0 {
		return nil, fmt.Errorf("%w: %T", ErrVertexType, zero)
	}
	capacity := bufferSize / stride
	if capacity == 0 {
		return nil, fmt.Errorf("batch: buffer of %d bytes cannot hold one %d-byte vertex", bufferSize, stride)
	}
	return &Batcher[V]{
		pool:     p,
		kind:     kind,
		stride:   stride,
		capacity: capacity,
	}, nil
}

// Kind returns the primitive kind of every draw this batcher emits.
func (b *Batcher[V]) Kind() device.Primitive { return b.kind }

// Stride returns the encoded size of one vertex in bytes.
func (b *Batcher[V]) Stride() int { return b.stride }

// Capacity returns how many vertices fit in one buffer.
func (b *Batcher[V]) Capacity() int { return b.capacity }

// Used returns how many vertices the held buffer contains.
func (b *Batcher[V]) Used() int { return b.used }

// Holding reports whether a buffer is currently held.
func (b *Batcher[V]) Holding() bool { return b.cur != nil }

// Add appends elems to the held buffer, allocating one first if needed.
// It returns false without writing anything when elems do not fit, and
// ErrTooLarge without allocating when they could never fit.
func (b *Batcher[V]) Add(elems []V) (bool, error) {
	if len(elems) == 0 {
		return true, nil
	}
	if len(elems) > b.capacity {
		return false, fmt.Errorf("%w: %d vertices, capacity %d", ErrTooLarge, len(elems), b.capacity)
	}
	if b.cur == nil {
		r, err := b.pool.Allocate()
		if err != nil {
			return false, fmt.Errorf("batch: allocate %v buffer: %w", b.kind, err)
		}
		b.cur = r
		b.used = 0
	}
	if b.used+len(elems) > b.capacity {
		return false, nil
	}

	dst := b.cur.Value.Contents()[b.used*b.stride:]
	if _, err := binary.Encode(dst, binary.LittleEndian, elems); err != nil {
		return false, fmt.Errorf("batch: encode %d vertices: %w", len(elems), err)
	}
	b.used += len(elems)
	return true, nil
}

// Push adds elems, flushing through d once when the held buffer is full.
// Returns ErrTooLarge if elems exceed an empty buffer.
func (b *Batcher[V]) Push(d Drawer, elems []V) error {
	ok, err := b.Add(elems)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	b.Flush(d)
	_, err = b.Add(elems)
	return err
}

// Flush emits one draw for the held buffer, hands it to the frame being
// recorded and forgets it. Flush without a held buffer does nothing.
func (b *Batcher[V]) Flush(d Drawer) {
	if b.cur == nil {
		return
	}
	cur, used := b.cur, b.used
	b.cur, b.used = nil, 0

	if used > 0 {
		d.Draw(cur.Value, b.kind, 0, used)
	}
	b.pool.Pend(cur)
}
