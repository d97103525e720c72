// Package pipeline tracks which GPU pipeline is active on the frame's command
// stream and flushes pending batches before switching away from it.
package pipeline

import (
	"log/slog"

	"github.com/gogpu/gg2d/device"
)

// Flusher is a batch bound to one pipeline state.
type Flusher interface {
	// Flush emits the batch's outstanding draw, if any.
	Flush()
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func()

// Flush calls f.
func (f FlushFunc) Flush() { f() }

// Activator binds a pipeline on the current command stream.
type Activator interface {
	SetPipeline(p device.Pipeline)
}

// Selector switches pipelines lazily. Batches registered for a state are
// flushed, in registration order, whenever the selector leaves that state.
//
// Not safe for concurrent use; it lives on the recording goroutine.
type Selector struct {
	current  device.Pipeline
	flushers map[device.Pipeline][]Flusher
	target   Activator
	log      *slog.Logger

	switches uint64
}

// NewSelector returns a selector in the None state.
func NewSelector(log *slog.Logger) *Selector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Selector{
		current:  device.PipelineNone,
		flushers: make(map[device.Pipeline][]Flusher),
		log:      log,
	}
}

// Register adds flushers for state s.
func (s *Selector) Register(state device.Pipeline, fs ...Flusher) {
	s.flushers[state] = append(s.flushers[state], fs...)
}

// Bind sets the command stream pipelines are activated on. Call it at the
// start of each frame; nil detaches.
func (s *Selector) Bind(target Activator) {
	s.target = target
}

// Current returns the active state.
func (s *Selector) Current() device.Pipeline { return s.current }

// Switches returns how many pipeline changes were issued to command streams.
func (s *Selector) Switches() uint64 { return s.switches }

// Select makes p current. Selecting the current state does nothing.
// Otherwise every batch of the previous state is flushed before p is
// activated, so draws reach the stream in the order they were made.
func (s *Selector) Select(p device.Pipeline) {
	if p == s.current {
		return
	}
	prev := s.current
	for _, f := range s.flushers[prev] {
		f.Flush()
	}
	s.current = p
	if p != device.PipelineNone && s.target != nil {
		s.target.SetPipeline(p)
		s.switches++
	}
	s.log.Debug("pipeline: select", "from", prev, "to", p)
}

// Reset selects None, flushing whatever the last state left outstanding.
// Called at the end of every frame.
func (s *Selector) Reset() {
	s.Select(device.PipelineNone)
}
