package pool

import "fmt"

// Stats is a snapshot of pool occupancy.
type Stats struct {
	// Total is the number of resources ever created.
	Total int
	// Free, Allocated and Pending count resources per state. Pending
	// includes both the frame being recorded and in-flight frames.
	Free      int
	Allocated int
	Pending   int
	// InFlightFrames is the number of closed frames awaiting completion.
	InFlightFrames int
	// GrowEvents counts how often the pool grew past pre-inflation.
	GrowEvents uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d total, %d free, %d allocated, %d pending, %d frames in flight, %d grows]",
		s.Total, s.Free, s.Allocated, s.Pending, s.InFlightFrames, s.GrowEvents)
}

// Stats returns current occupancy.
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := len(p.pending)
	for _, list := range p.inFlight {
		pending += len(list)
	}
	return Stats{
		Total:          len(p.all),
		Free:           len(p.free),
		Allocated:      len(p.allocated),
		Pending:        pending,
		InFlightFrames: len(p.inFlight),
		GrowEvents:     p.growEvents,
	}
}
