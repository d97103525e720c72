package pipeline

import (
	"slices"
	"testing"

	"github.com/gogpu/gg2d/device"
)

type eventLog struct {
	events []string
}

func (l *eventLog) SetPipeline(p device.Pipeline) {
	l.events = append(l.events, "set:"+p.String())
}

func (l *eventLog) flusher(name string) Flusher {
	return FlushFunc(func() { l.events = append(l.events, "flush:"+name) })
}

func newTestSelector() (*Selector, *eventLog) {
	log := &eventLog{}
	s := NewSelector(nil)
	s.Register(device.PipelineFlat, log.flusher("points"), log.flusher("lines"), log.flusher("triangles"))
	s.Register(device.PipelineTextured, log.flusher("rects"))
	s.Bind(log)
	return s, log
}

func TestSelectOrdering(t *testing.T) {
	tests := []struct {
		name  string
		steps []device.Pipeline
		want  []string
	}{
		{
			name:  "first select only activates",
			steps: []device.Pipeline{device.PipelineFlat},
			want:  []string{"set:Flat"},
		},
		{
			name:  "repeat select is a no-op",
			steps: []device.Pipeline{device.PipelineFlat, device.PipelineFlat},
			want:  []string{"set:Flat"},
		},
		{
			name:  "switch flushes previous state first",
			steps: []device.Pipeline{device.PipelineFlat, device.PipelineTextured},
			want:  []string{"set:Flat", "flush:points", "flush:lines", "flush:triangles", "set:Textured"},
		},
		{
			name:  "switch back",
			steps: []device.Pipeline{device.PipelineTextured, device.PipelineFlat},
			want:  []string{"set:Textured", "flush:rects", "set:Flat"},
		},
		{
			name:  "none does not activate",
			steps: []device.Pipeline{device.PipelineTextured, device.PipelineNone},
			want:  []string{"set:Textured", "flush:rects"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, log := newTestSelector()
			for _, p := range tt.steps {
				s.Select(p)
			}
			if !slices.Equal(log.events, tt.want) {
				t.Errorf("events = %v, want %v", log.events, tt.want)
			}
		})
	}
}

func TestResetFlushesOnce(t *testing.T) {
	s, log := newTestSelector()
	s.Select(device.PipelineTextured)
	s.Reset()
	s.Reset()
	want := []string{"set:Textured", "flush:rects"}
	if !slices.Equal(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
	if s.Current() != device.PipelineNone {
		t.Errorf("Current() = %v, want None", s.Current())
	}
}

func TestInitialState(t *testing.T) {
	s := NewSelector(nil)
	if s.Current() != device.PipelineNone {
		t.Errorf("Current() = %v, want None", s.Current())
	}
	s.Reset()
	if s.Switches() != 0 {
		t.Errorf("Switches() = %d, want 0", s.Switches())
	}
}

func TestUnboundSelectorStillFlushes(t *testing.T) {
	log := &eventLog{}
	s := NewSelector(nil)
	s.Register(device.PipelineFlat, log.flusher("points"))
	s.Select(device.PipelineFlat)
	s.Reset()
	if !slices.Equal(log.events, []string{"flush:points"}) {
		t.Errorf("events = %v", log.events)
	}
}
