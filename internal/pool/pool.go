// Package pool implements the frame-pipelined allocator behind gg2d's vertex
// buffers.
//
// A resource cycles Free -> Allocated -> Pending -> Free. Allocate and Pend
// run on the recording goroutine; CompleteFrame runs on whatever goroutine
// the GPU completion signal arrives on. One mutex per pool serializes both.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Pool errors.
var (
	// ErrExhausted is returned by Allocate when the free list is empty and
	// the pool may not grow.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrNotAllocated signals Pend of a resource that is not Allocated:
	// a use-after-free or a double pend.
	ErrNotAllocated = errors.New("pool: resource not allocated")

	// ErrNotPending signals completion of a resource that is not Pending.
	ErrNotPending = errors.New("pool: resource not pending")

	// ErrFrameOpen signals StartFrame or EndFrame while resources are still
	// allocated or pending from an unfinished frame.
	ErrFrameOpen = errors.New("pool: previous frame not drained")

	// ErrClosed is returned when operating on a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// State is the lifecycle state of a pooled resource.
type State uint8

const (
	// Free resources sit on the free list.
	Free State = iota
	// Allocated resources are held by exactly one producer.
	Allocated
	// Pending resources are referenced by recorded GPU commands.
	Pending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Allocated:
		return "Allocated"
	case Pending:
		return "Pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Policy decides what Allocate does when the free list is empty.
type Policy uint8

const (
	// Grow creates PipelineDepth more resources synchronously.
	Grow Policy = iota
	// Fixed fails with ErrExhausted.
	Fixed
)

// String returns the policy name.
func (p Policy) String() string {
	if p == Fixed {
		return "Fixed"
	}
	return "Grow"
}

// Default sizing.
const (
	// DefaultInitialClients is the expected number of concurrent producers.
	DefaultInitialClients = 4

	// DefaultPipelineDepth matches a triple-buffered display pipeline.
	DefaultPipelineDepth = 3
)

// Config configures a Pool.
type Config struct {
	// InitialClients is the expected number of concurrent producers.
	// The pool is pre-inflated to InitialClients*PipelineDepth resources.
	InitialClients int

	// PipelineDepth is the number of frames the GPU may have queued.
	// Also the growth step under the Grow policy.
	PipelineDepth int

	// Policy selects growth or failure on exhaustion.
	Policy Policy

	// MaxResources caps the total under Grow. Zero means unbounded.
	MaxResources int

	// Logger receives debug diagnostics. Nil discards.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.InitialClients <= 0 {
		c.InitialClients = DefaultInitialClients
	}
	if c.PipelineDepth <= 0 {
		c.PipelineDepth = DefaultPipelineDepth
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Factory creates the n-th device object of a pool. id is unique per pool.
type Factory[R any] func(id uint64) (R, error)

// Resource is a pool-owned slot wrapping one device object.
// The state is only meaningful while the owning pool's lock is not
// contended; use it for assertions and diagnostics.
type Resource[R any] struct {
	id    uint64
	state State
	// Value is the wrapped device object.
	Value R
}

// ID returns the resource's identity, stable for the pool's lifetime.
func (r *Resource[R]) ID() uint64 { return r.id }

// String returns a debug description.
func (r *Resource[R]) String() string {
	return fmt.Sprintf("resource %d [%v]", r.id, r.state)
}

// Pool hands out reusable fixed-capacity resources and takes them back only
// once the frame that referenced them has completed on the GPU.
//
// Pool is safe for concurrent use.
type Pool[R any] struct {
	mu sync.Mutex

	factory Factory[R]
	cfg     Config
	log     *slog.Logger

	nextID uint64
	// all holds every resource ever created, for teardown and stats.
	all []*Resource[R]
	// free is LIFO: most recently freed at the end.
	free      []*Resource[R]
	allocated map[*Resource[R]]struct{}
	// pending holds resources pended during the frame being recorded.
	pending []*Resource[R]
	// inFlight maps a closed frame to the resources it referenced.
	inFlight map[uint64][]*Resource[R]

	growEvents uint64
	closed     bool
}

// New creates a pool and pre-inflates it.
// Returns an error if the factory fails during pre-inflation.
func New[R any](factory Factory[R], cfg Config) (*Pool[R], error) {
	cfg.setDefaults()
	p := &Pool[R]{
		factory:   factory,
		cfg:       cfg,
		log:       cfg.Logger,
		nextID:    2000,
		allocated: make(map[*Resource[R]]struct{}),
		inFlight:  make(map[uint64][]*Resource[R]),
	}
	if err := p.createLocked(cfg.InitialClients * cfg.PipelineDepth); err != nil {
		return nil, err
	}
	return p, nil
}

// createLocked appends n new resources to the free list.
func (p *Pool[R]) createLocked(n int) error {
	for i := 0; i < n; i++ {
		v, err := p.factory(p.nextID)
		if err != nil {
			return fmt.Errorf("pool: create resource %d: %w", p.nextID, err)
		}
		r := &Resource[R]{id: p.nextID, state: Free, Value: v}
		p.nextID++
		p.all = append(p.all, r)
		p.free = append(p.free, r)
	}
	return nil
}

// Allocate returns a Free resource marked Allocated.
//
// On an empty free list the Grow policy creates PipelineDepth more resources,
// failing with ErrExhausted only past MaxResources; the Fixed policy fails
// with ErrExhausted immediately. Both failures are capacity-planning bugs.
func (p *Pool[R]) Allocate() (*Resource[R], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if len(p.free) == 0 {
		if err := p.growLocked(); err != nil {
			return nil, err
		}
	}

	r := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	r.state = Allocated
	p.allocated[r] = struct{}{}
	return r, nil
}

func (p *Pool[R]) growLocked() error {
	total := len(p.all)
	if p.cfg.Policy == Fixed {
		return fmt.Errorf("%w: %d resources, fixed policy", ErrExhausted, total)
	}
	n := p.cfg.PipelineDepth
	if p.cfg.MaxResources > 0 {
		if total >= p.cfg.MaxResources {
			return fmt.Errorf("%w: %d resources, limit %d", ErrExhausted, total, p.cfg.MaxResources)
		}
		n = min(n, p.cfg.MaxResources-total)
	}
	if err := p.createLocked(n); err != nil {
		return err
	}
	p.growEvents++
	p.log.Debug("pool: grew", "added", n, "total", len(p.all), "inFlightFrames", len(p.inFlight))
	return nil
}

// Pend hands an Allocated resource over to the frame being recorded.
// Panics with ErrNotAllocated if r is not Allocated.
func (p *Pool[R]) Pend(r *Resource[R]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allocated[r]; !ok || r.state != Allocated {
		panic(fmt.Errorf("%w: %v", ErrNotAllocated, r))
	}
	delete(p.allocated, r)
	r.state = Pending
	p.pending = append(p.pending, r)
}

// StartFrame checks the previous frame was fully drained and reports whether
// a new frame may be recorded. It returns false when maxInFlight or more
// frames are still waiting for the GPU; the caller should skip this tick.
// Panics with ErrFrameOpen if resources are still allocated or pending.
func (p *Pool[R]) StartFrame(maxInFlight int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.allocated) != 0 || len(p.pending) != 0 {
		panic(fmt.Errorf("%w: %d allocated, %d pending", ErrFrameOpen, len(p.allocated), len(p.pending)))
	}
	return maxInFlight <= 0 || len(p.inFlight) < maxInFlight
}

// EndFrame files the frame's pending resources under frameID.
// An empty frame is recorded too so InFlight reflects submitted frames.
// Panics with ErrFrameOpen if a resource is still allocated.
func (p *Pool[R]) EndFrame(frameID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.allocated) != 0 {
		panic(fmt.Errorf("%w: %d still allocated at end of frame %d", ErrFrameOpen, len(p.allocated), frameID))
	}
	p.inFlight[frameID] = p.pending
	p.pending = nil
}

// CompleteFrame returns every resource of frameID to the free list.
// Unknown or already completed frames are ignored.
func (p *Pool[R]) CompleteFrame(frameID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, ok := p.inFlight[frameID]
	if !ok {
		return
	}
	delete(p.inFlight, frameID)
	for _, r := range list {
		if r.state != Pending {
			panic(fmt.Errorf("%w: %v in frame %d", ErrNotPending, r, frameID))
		}
		r.state = Free
		p.free = append(p.free, r)
	}
}

// InFlight returns the number of frames awaiting GPU completion.
func (p *Pool[R]) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// StateOf returns r's current state under the pool lock.
func (p *Pool[R]) StateOf(r *Resource[R]) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.state
}

// Close destroys every resource the pool created. Resources still in flight
// are destroyed too; call it only after the device has gone idle.
func (p *Pool[R]) Close(destroy func(R)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if destroy != nil {
		for _, r := range p.all {
			destroy(r.Value)
		}
	}
	p.all = nil
	p.free = nil
	p.pending = nil
	clear(p.allocated)
	clear(p.inFlight)
}
