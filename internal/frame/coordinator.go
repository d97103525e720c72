// Package frame sequences frames through recording, submission and GPU
// completion, and fans each transition out to the resource managers that
// track per-frame usage.
package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator errors.
var (
	// ErrRecording signals StartFrame while a frame is being recorded.
	ErrRecording = errors.New("frame: frame already recording")

	// ErrNotRecording signals EndFrame or Abandon outside a frame.
	ErrNotRecording = errors.New("frame: no frame recording")
)

// DefaultFirstID is the ID of the first ended frame.
const DefaultFirstID ID = 1000

// DefaultMaxInFlight is the number of frames the GPU may have queued before
// StartFrame asks the caller to skip a tick.
const DefaultMaxInFlight = 3

// ID identifies an ended frame. IDs strictly increase.
type ID uint64

// Participant tracks resources per frame.
type Participant interface {
	// StartFrame asserts the previous frame was fully handed over.
	StartFrame()
	// EndFrame files what the recording frame used under id.
	EndFrame(id uint64)
	// CompleteFrame releases what frame id used. It must be idempotent and
	// safe to call from any goroutine.
	CompleteFrame(id uint64)
}

// Config configures a Coordinator.
type Config struct {
	// FirstID is the ID given to the first ended frame. Zero means
	// DefaultFirstID.
	FirstID ID
	// MaxInFlight bounds queued frames. Zero means DefaultMaxInFlight;
	// negative disables the bound.
	MaxInFlight int
	// Logger receives debug diagnostics. Nil discards.
	Logger *slog.Logger
}

// Stats counts frame transitions.
type Stats struct {
	Started   uint64
	Ended     uint64
	Completed uint64
	Skipped   uint64
	Abandoned uint64
	InFlight  int
	// LastID is the most recently ended frame, zero before the first.
	LastID ID
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Frames[%d started, %d ended, %d completed, %d skipped, %d abandoned, %d in flight]",
		s.Started, s.Ended, s.Completed, s.Skipped, s.Abandoned, s.InFlight)
}

// Coordinator owns the frame state machine: Idle, Recording, then one
// in-flight entry per ended frame until the GPU reports completion.
//
// StartFrame, Abandon and EndFrame belong to the recording goroutine.
// CompleteFrame may be called from any goroutine at any time.
type Coordinator struct {
	mu  sync.Mutex
	log *slog.Logger

	participants []Participant
	maxInFlight  int
	nextID       ID
	recording    bool

	// inFlight maps ended frames to whether completion is under way.
	inFlight map[ID]bool
	stats    Stats
}

// New creates a coordinator notifying participants in order.
func New(cfg Config, participants ...Participant) *Coordinator {
	if cfg.FirstID == 0 {
		cfg.FirstID = DefaultFirstID
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		log:          cfg.Logger,
		participants: participants,
		maxInFlight:  cfg.MaxInFlight,
		nextID:       cfg.FirstID,
		inFlight:     make(map[ID]bool),
	}
}

// StartFrame begins recording unless too many frames are queued, in which
// case it returns false and the caller skips this tick.
// Panics with ErrRecording if a frame is already being recorded.
func (c *Coordinator) StartFrame() bool {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		panic(ErrRecording)
	}
	if c.maxInFlight > 0 && len(c.inFlight) >= c.maxInFlight {
		c.stats.Skipped++
		n := len(c.inFlight)
		c.mu.Unlock()
		c.log.Debug("frame: skip", "inFlight", n)
		return false
	}
	c.recording = true
	c.stats.Started++
	c.mu.Unlock()

	for _, p := range c.participants {
		p.StartFrame()
	}
	return true
}

// Abandon ends a frame that never obtained a command stream. Nothing may
// have been recorded into it.
func (c *Coordinator) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording {
		panic(fmt.Errorf("%w: abandon", ErrNotRecording))
	}
	c.recording = false
	c.stats.Abandoned++
}

// EndFrame closes the recording frame, assigns its ID and hands the frame's
// resources to every participant.
func (c *Coordinator) EndFrame() ID {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		panic(fmt.Errorf("%w: end", ErrNotRecording))
	}
	id := c.nextID
	c.nextID++
	c.recording = false
	c.inFlight[id] = false
	c.stats.Ended++
	c.stats.LastID = id
	c.mu.Unlock()

	for _, p := range c.participants {
		p.EndFrame(uint64(id))
	}
	return id
}

// CompleteFrame reports that the GPU finished frame id. Participants are
// notified before the frame stops counting as in flight. Unknown and
// repeated IDs are ignored.
func (c *Coordinator) CompleteFrame(id ID) {
	c.mu.Lock()
	completing, ok := c.inFlight[id]
	if !ok || completing {
		c.mu.Unlock()
		return
	}
	c.inFlight[id] = true
	c.mu.Unlock()

	for _, p := range c.participants {
		p.CompleteFrame(uint64(id))
	}

	c.mu.Lock()
	delete(c.inFlight, id)
	c.stats.Completed++
	c.mu.Unlock()
}

// Recording reports whether a frame is open.
func (c *Coordinator) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// InFlight returns the number of ended frames not yet completed.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// Stats returns the transition counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.InFlight = len(c.inFlight)
	return s
}
