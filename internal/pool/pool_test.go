package pool

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeBuf struct {
	id uint64
}

func newTestPool(t *testing.T, cfg Config) *Pool[*fakeBuf] {
	t.Helper()
	p, err := New(func(id uint64) (*fakeBuf, error) {
		return &fakeBuf{id: id}, nil
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// checkExclusive verifies every resource sits in exactly one container and
// that its state matches the container.
func checkExclusive[R any](t *testing.T, p *Pool[R]) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[*Resource[R]]string)
	mark := func(r *Resource[R], where string, want State) {
		if prev, ok := seen[r]; ok {
			t.Fatalf("%v in both %s and %s", r, prev, where)
		}
		seen[r] = where
		if r.state != want {
			t.Fatalf("%v in %s has state %v, want %v", r, where, r.state, want)
		}
	}
	for _, r := range p.free {
		mark(r, "free", Free)
	}
	for r := range p.allocated {
		mark(r, "allocated", Allocated)
	}
	for _, r := range p.pending {
		mark(r, "pending", Pending)
	}
	for id, list := range p.inFlight {
		for _, r := range list {
			mark(r, fmt.Sprintf("frame %d", id), Pending)
		}
	}
	if len(seen) != len(p.all) {
		t.Fatalf("%d resources accounted for, %d exist", len(seen), len(p.all))
	}
}

func mustPanicWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic with %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("panic = %v, want %v", r, target)
		}
	}()
	fn()
}

func TestNewPreInflates(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 4, PipelineDepth: 3})
	s := p.Stats()
	if s.Total != 12 || s.Free != 12 {
		t.Errorf("Stats() = %v, want 12 total and free", s)
	}
	checkExclusive(t, p)
}

func TestNewDefaults(t *testing.T) {
	p := newTestPool(t, Config{})
	if got := p.Stats().Total; got != DefaultInitialClients*DefaultPipelineDepth {
		t.Errorf("Total = %d, want %d", got, DefaultInitialClients*DefaultPipelineDepth)
	}
}

func TestNewFactoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(func(uint64) (int, error) { return 0, boom }, Config{})
	if !errors.Is(err, boom) {
		t.Fatalf("New error = %v, want %v", err, boom)
	}
}

func TestAllocateIsLIFO(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 3})

	p.StartFrame(3)
	r, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	p.Pend(r)
	p.EndFrame(10)
	p.CompleteFrame(10)

	p.StartFrame(3)
	again, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if again != r {
		t.Errorf("Allocate after completion = %v, want most recently freed %v", again, r)
	}
}

func TestLifecycleStates(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 1})

	if !p.StartFrame(3) {
		t.Fatal("StartFrame refused an idle pool")
	}
	r, err := p.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if got := p.StateOf(r); got != Allocated {
		t.Errorf("after Allocate state = %v", got)
	}
	checkExclusive(t, p)

	p.Pend(r)
	if got := p.StateOf(r); got != Pending {
		t.Errorf("after Pend state = %v", got)
	}
	checkExclusive(t, p)

	p.EndFrame(1)
	checkExclusive(t, p)
	if p.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", p.InFlight())
	}

	p.CompleteFrame(1)
	if got := p.StateOf(r); got != Free {
		t.Errorf("after CompleteFrame state = %v", got)
	}
	checkExclusive(t, p)
}

func TestCompleteFrameIdempotent(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 2})

	p.StartFrame(3)
	r, _ := p.Allocate()
	p.Pend(r)
	p.EndFrame(7)

	p.CompleteFrame(7)
	before := p.Stats()
	p.CompleteFrame(7)
	p.CompleteFrame(12345)
	after := p.Stats()
	if before != after {
		t.Errorf("repeat CompleteFrame changed stats: %v -> %v", before, after)
	}
	if after.Free != after.Total {
		t.Errorf("Stats() = %v, want everything free", after)
	}
	checkExclusive(t, p)
}

func TestPendNotAllocatedPanics(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 1})
	p.StartFrame(3)
	r, _ := p.Allocate()
	p.Pend(r)

	mustPanicWith(t, ErrNotAllocated, func() { p.Pend(r) })

	p.EndFrame(1)
	p.CompleteFrame(1)
	mustPanicWith(t, ErrNotAllocated, func() { p.Pend(r) })
}

func TestStartFrameWithOpenFramePanics(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 2})
	p.StartFrame(3)
	r, _ := p.Allocate()
	mustPanicWith(t, ErrFrameOpen, func() { p.StartFrame(3) })

	p.Pend(r)
	mustPanicWith(t, ErrFrameOpen, func() { p.StartFrame(3) })
}

func TestEndFrameWithAllocatedPanics(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 1})
	p.StartFrame(3)
	if _, err := p.Allocate(); err != nil {
		t.Fatal(err)
	}
	mustPanicWith(t, ErrFrameOpen, func() { p.EndFrame(1) })
}

func TestBackpressure(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 3})

	for frame := uint64(1); frame <= 3; frame++ {
		if !p.StartFrame(3) {
			t.Fatalf("StartFrame refused frame %d", frame)
		}
		r, err := p.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		p.Pend(r)
		p.EndFrame(frame)
	}
	if p.StartFrame(3) {
		t.Fatal("4th StartFrame with 3 frames in flight was not refused")
	}

	p.CompleteFrame(2)
	if !p.StartFrame(3) {
		t.Fatal("StartFrame refused after a completion")
	}
}

func TestEmptyFramesCountAsInFlight(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 1})
	for frame := uint64(1); frame <= 3; frame++ {
		p.StartFrame(3)
		p.EndFrame(frame)
	}
	if p.InFlight() != 3 {
		t.Errorf("InFlight = %d, want 3", p.InFlight())
	}
	if p.StartFrame(3) {
		t.Error("StartFrame accepted a 4th queued frame")
	}
}

func TestGrowPolicy(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 3})
	p.StartFrame(3)

	var got []*Resource[*fakeBuf]
	for i := 0; i < 7; i++ {
		r, err := p.Allocate()
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		got = append(got, r)
	}
	s := p.Stats()
	if s.Total != 9 || s.GrowEvents != 2 || s.Allocated != 7 {
		t.Errorf("Stats() = %v, want 9 total, 2 grows, 7 allocated", s)
	}

	ids := make(map[uint64]bool)
	for _, r := range got {
		if ids[r.ID()] {
			t.Fatalf("duplicate id %d", r.ID())
		}
		ids[r.ID()] = true
	}
	checkExclusive(t, p)
}

func TestGrowPolicyLimit(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 3, MaxResources: 4})
	p.StartFrame(3)
	for i := 0; i < 4; i++ {
		if _, err := p.Allocate(); err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
	}
	if _, err := p.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Allocate past limit = %v, want ErrExhausted", err)
	}
	if got := p.Stats().Total; got != 4 {
		t.Errorf("Total = %d, want 4", got)
	}
}

func TestFixedPolicy(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 2, Policy: Fixed})
	p.StartFrame(3)
	for i := 0; i < 2; i++ {
		if _, err := p.Allocate(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Allocate = %v, want ErrExhausted", err)
	}
}

func TestGrowFactoryFailure(t *testing.T) {
	boom := errors.New("out of device memory")
	calls := 0
	p, err := New(func(id uint64) (int, error) {
		calls++
		if calls > 1 {
			return 0, boom
		}
		return int(id), nil
	}, Config{InitialClients: 1, PipelineDepth: 1})
	if err != nil {
		t.Fatal(err)
	}
	p.StartFrame(3)
	if _, err := p.Allocate(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Allocate(); !errors.Is(err, boom) {
		t.Fatalf("Allocate = %v, want %v", err, boom)
	}
}

func TestConcurrentCompletion(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 2, PipelineDepth: 3})

	completions := make(chan uint64, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := range completions {
			p.CompleteFrame(id)
		}
	}()

	recorded := 0
	for frame := uint64(100); recorded < 200; frame++ {
		if !p.StartFrame(3) {
			continue
		}
		for i := 0; i < 4; i++ {
			r, err := p.Allocate()
			if err != nil {
				t.Fatal(err)
			}
			p.Pend(r)
		}
		p.EndFrame(frame)
		completions <- frame
		recorded++
	}
	close(completions)
	wg.Wait()

	s := p.Stats()
	if s.Free != s.Total || s.InFlightFrames != 0 {
		t.Errorf("Stats() = %v, want fully drained", s)
	}
	checkExclusive(t, p)
}

func TestClose(t *testing.T) {
	p := newTestPool(t, Config{InitialClients: 1, PipelineDepth: 3})
	destroyed := 0
	p.Close(func(*fakeBuf) { destroyed++ })
	if destroyed != 3 {
		t.Errorf("destroyed %d, want 3", destroyed)
	}
	if _, err := p.Allocate(); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate after Close = %v, want ErrClosed", err)
	}
	p.Close(func(*fakeBuf) { destroyed++ })
	if destroyed != 3 {
		t.Error("second Close destroyed again")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Free, "Free"},
		{Allocated, "Allocated"},
		{Pending, "Pending"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
