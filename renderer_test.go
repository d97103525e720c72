package gg2d

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gg2d/device"
	"github.com/gogpu/gg2d/internal/pool"
	"github.com/gogpu/gg2d/internal/texcache"
	"github.com/gogpu/gg2d/recording"
)

func newTestRenderer(t *testing.T, frameFn func(Engine), opts ...Option) (*Renderer, *recording.Device) {
	t.Helper()
	dev := recording.NewDevice()
	r, err := NewRenderer(dev, ClientFuncs{FrameFunc: frameFn}, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r, dev
}

func mustRender(t *testing.T, r *Renderer) {
	t.Helper()
	ok, err := r.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if !ok {
		t.Fatal("RenderFrame skipped")
	}
}

func draws(f *recording.Frame) []recording.DrawCommand {
	var out []recording.DrawCommand
	for _, c := range f.Commands {
		if d, ok := c.(recording.DrawCommand); ok {
			out = append(out, d)
		}
	}
	return out
}

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("panic = %v, want %v", r, target)
		}
	}()
	fn()
}

func TestNewRendererPreInflates(t *testing.T) {
	_, dev := newTestRenderer(t, nil)
	if got := len(dev.Buffers()); got != 12 {
		t.Errorf("created %d buffers, want 12", got)
	}
	for _, b := range dev.Buffers() {
		if b.Size() != device.DefaultBufferSize {
			t.Fatalf("buffer %s size %d", b.Label(), b.Size())
		}
	}
}

func TestNewRendererErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := NewRenderer(recording.NewDevice(), ClientFuncs{}, WithPipelineDepth(0))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("buffer creation", func(t *testing.T) {
		dev := recording.NewDevice()
		dev.FailBufferCreation(true)
		if _, err := NewRenderer(dev, ClientFuncs{}); err == nil {
			t.Error("NewRenderer succeeded without buffers")
		}
	})
	t.Run("setup", func(t *testing.T) {
		boom := errors.New("boom")
		dev := recording.NewDevice()
		_, err := NewRenderer(dev, ClientFuncs{SetupFunc: func(Engine) error { return boom }})
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
		if dev.LiveBuffers() != 0 {
			t.Errorf("%d buffers leaked", dev.LiveBuffers())
		}
	})
}

func TestEmptyFrame(t *testing.T) {
	r, dev := newTestRenderer(t, nil, WithBackgroundColor(Red), WithViewport(320, 200))
	mustRender(t, r)

	f := dev.Frame(0)
	want := []recording.CommandType{recording.CmdSetViewport, recording.CmdCommit}
	if got := f.Types(); !slices.Equal(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
	if f.Clear != Red {
		t.Errorf("Clear = %v, want red", f.Clear)
	}
	if vp := f.Commands[0].(recording.SetViewportCommand); vp.Width != 320 || vp.Height != 200 {
		t.Errorf("viewport = %+v", vp)
	}
	if s := r.Stats(); s.Frames.LastID != 1000 || s.Frames.InFlight != 1 {
		t.Errorf("Stats() = %v", s)
	}
}

func TestTriangleOverflow(t *testing.T) {
	perBuffer := device.DefaultBufferSize / device.ColorVertexStride / 3
	r, dev := newTestRenderer(t, func(e Engine) {
		for i := 0; i <= perBuffer; i++ {
			x := float32(i)
			e.DrawTriangle(Pt(x, 0), Pt(x+1, 0), Pt(x, 1), White)
		}
	})
	mustRender(t, r)

	d := draws(dev.Frame(0))
	if len(d) != 2 {
		t.Fatalf("got %d draws, want 2", len(d))
	}
	if d[0].Count != perBuffer*3 || d[1].Count != 3 {
		t.Errorf("draw counts = %d, %d, want %d, 3", d[0].Count, d[1].Count, perBuffer*3)
	}
	if s := r.Stats().Buffers; s.Pending != 2 {
		t.Errorf("pending buffers = %d, want 2", s.Pending)
	}
}

func TestPipelineOrdering(t *testing.T) {
	var tex TextureID
	dev := recording.NewDevice()
	r, err := NewRenderer(dev, ClientFuncs{
		SetupFunc: func(e Engine) error {
			var err error
			tex, err = e.CreateTexture(make([]byte, 4), 1, 1, FormatRGBA8)
			return err
		},
		FrameFunc: func(e Engine) {
			e.DrawPoint(Pt(1, 1), White)
			e.DrawTexturedRect(tex, 0, 0, 10, 10)
			e.DrawPoint(Pt(2, 2), White)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	mustRender(t, r)

	f := dev.Frame(0)
	want := []recording.CommandType{
		recording.CmdSetViewport,
		recording.CmdSetPipeline, recording.CmdSetVertexBuffer, recording.CmdDraw,
		recording.CmdSetPipeline, recording.CmdSetTexture, recording.CmdSetVertexBuffer, recording.CmdDraw,
		recording.CmdSetPipeline, recording.CmdSetVertexBuffer, recording.CmdDraw,
		recording.CmdCommit,
	}
	if got := f.Types(); !slices.Equal(got, want) {
		t.Fatalf("Types() = %v\nwant %v", got, want)
	}
	var pipelines []device.Pipeline
	for _, c := range f.Commands {
		if p, ok := c.(recording.SetPipelineCommand); ok {
			pipelines = append(pipelines, p.Pipeline)
		}
	}
	wantP := []device.Pipeline{device.PipelineFlat, device.PipelineTextured, device.PipelineFlat}
	if !slices.Equal(pipelines, wantP) {
		t.Errorf("pipelines = %v, want %v", pipelines, wantP)
	}
	vb := f.Commands[2].(recording.SetVertexBufferCommand)
	if got := vb.ColorVertices(); len(got) != 1 || got[0].X != 1 {
		t.Errorf("first point batch = %+v", got)
	}
}

func TestTextureChangeFlushesRects(t *testing.T) {
	var a, b TextureID
	dev := recording.NewDevice()
	r, err := NewRenderer(dev, ClientFuncs{
		SetupFunc: func(e Engine) error {
			a, _ = e.CreateTexture(make([]byte, 4), 1, 1, FormatRGBA8)
			b, _ = e.CreateTexture(make([]byte, 4), 1, 1, FormatBGRA8)
			return nil
		},
		FrameFunc: func(e Engine) {
			e.DrawTexturedRect(a, 0, 0, 1, 1)
			e.DrawTexturedRect(a, 1, 0, 1, 1)
			e.DrawTexturedRect(b, 2, 0, 1, 1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	mustRender(t, r)

	f := dev.Frame(0)
	d := draws(f)
	if len(d) != 2 || d[0].Count != 12 || d[1].Count != 6 {
		t.Fatalf("draws = %+v, want 12 then 6 vertices", d)
	}
	var bound []string
	for _, c := range f.Commands {
		if st, ok := c.(recording.SetTextureCommand); ok {
			bound = append(bound, st.Texture)
		}
	}
	if len(bound) != 2 || bound[0] == bound[1] {
		t.Errorf("bound textures = %v", bound)
	}
	var uvs []device.TexturedVertex
	for _, c := range f.Commands {
		if vb, ok := c.(recording.SetVertexBufferCommand); ok {
			uvs = vb.TexturedVertices()
			break
		}
	}
	wantUV := [][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 0}, {0, 1}, {1, 1}}
	for i, w := range wantUV {
		if uvs[i].U != w[0] || uvs[i].V != w[1] {
			t.Errorf("vertex %d uv = (%v, %v), want %v", i, uvs[i].U, uvs[i].V, w)
		}
	}
}

func TestBackpressure(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		e.DrawRect(0, 0, 10, 10, Blue)
	})
	for i := 0; i < 3; i++ {
		mustRender(t, r)
	}
	ok, err := r.RenderFrame()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("4th frame without completion was rendered")
	}
	if len(dev.Frames()) != 3 {
		t.Errorf("device saw %d frames, want 3", len(dev.Frames()))
	}

	dev.Complete(0)
	mustRender(t, r)
	if s := r.Stats().Frames; s.Skipped != 1 || s.Completed != 1 {
		t.Errorf("frame stats = %v", s)
	}
}

func TestNoDrawableAbandons(t *testing.T) {
	called := 0
	r, dev := newTestRenderer(t, func(Engine) { called++ })
	dev.SetNoDrawable(true)

	ok, err := r.RenderFrame()
	if ok || err != nil {
		t.Fatalf("RenderFrame = %v, %v, want false, nil", ok, err)
	}
	if called != 0 {
		t.Error("client frame ran without a drawable")
	}

	dev.SetNoDrawable(false)
	mustRender(t, r)
	s := r.Stats().Frames
	if s.Abandoned != 1 || s.LastID != 1000 {
		t.Errorf("frame stats = %+v", s)
	}
}

func TestUpdateTextureInFlight(t *testing.T) {
	var tex TextureID
	dev := recording.NewDevice()
	r, err := NewRenderer(dev, ClientFuncs{
		SetupFunc: func(e Engine) error {
			var err error
			tex, err = e.CreateTexture([]byte{1, 1, 1, 1}, 1, 1, FormatRGBA8)
			return err
		},
		FrameFunc: func(e Engine) { e.DrawTexturedRect(tex, 0, 0, 4, 4) },
	})
	if err != nil {
		t.Fatal(err)
	}
	mustRender(t, r)

	if err := r.UpdateTexture(tex, []byte{2, 2, 2, 2}); err != nil {
		t.Fatal(err)
	}
	textures := dev.Textures()
	if len(textures) != 2 {
		t.Fatalf("created %d textures, want 2", len(textures))
	}
	old := textures[0]
	if old.Pixels()[0] != 1 || old.Destroyed() {
		t.Fatal("texture sampled by the in-flight frame was modified")
	}

	dev.Complete(0)
	if !old.Destroyed() {
		t.Error("replaced texture not released after completion")
	}

	if err := r.UpdateTexture(tex, []byte{3, 3, 3, 3}); err != nil {
		t.Fatal(err)
	}
	if len(dev.Textures()) != 2 {
		t.Error("idle update created a new texture")
	}
}

func TestDrawOutsideFramePanics(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	expectPanic(t, ErrNoFrame, func() { r.DrawPoint(Pt(0, 0), White) })
}

func TestUnknownTexturePanics(t *testing.T) {
	r, _ := newTestRenderer(t, func(e Engine) {
		e.DrawTexturedRect(TextureID(77), 0, 0, 1, 1)
	})
	expectPanic(t, texcache.ErrUnknownTexture, func() { _, _ = r.RenderFrame() })
}

func TestUnknownTextureUpdateDestroyPanics(t *testing.T) {
	tests := []struct {
		name string
		op   func(r *Renderer)
	}{
		{"update", func(r *Renderer) { _ = r.UpdateTexture(TextureID(42), []byte{1, 2, 3, 4}) }},
		{"destroy", func(r *Renderer) { r.DestroyTexture(TextureID(42)) }},
		{"destroy twice", func(r *Renderer) {
			id, err := r.CreateTexture([]byte{1, 1, 1, 1}, 1, 1, FormatRGBA8)
			if err != nil {
				t.Fatal(err)
			}
			r.DestroyTexture(id)
			r.DestroyTexture(id)
		}},
		{"update destroyed", func(r *Renderer) {
			id, err := r.CreateTexture([]byte{1, 1, 1, 1}, 1, 1, FormatRGBA8)
			if err != nil {
				t.Fatal(err)
			}
			r.DestroyTexture(id)
			_ = r.UpdateTexture(id, []byte{2, 2, 2, 2})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRenderer(t, nil)
			expectPanic(t, texcache.ErrUnknownTexture, func() { tt.op(r) })
		})
	}
}

func TestUpdateTextureBadPixels(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	id, err := r.CreateTexture([]byte{1, 1, 1, 1}, 1, 1, FormatRGBA8)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateTexture(id, []byte{1, 2}); err == nil {
		t.Error("UpdateTexture accepted a short pixel slice")
	}
}

func TestDrawColoredLine(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		e.DrawColoredLine(
			ColorVertex{X: 0, Y: 0, R: 1, A: 1},
			ColorVertex{X: 10, Y: 10, B: 1, A: 1},
		)
	})
	mustRender(t, r)

	f := dev.Frame(0)
	d := draws(f)
	if len(d) != 1 || d[0].Kind != device.PrimitiveLine || d[0].Count != 2 {
		t.Fatalf("draws = %+v, want one 2-vertex line draw", d)
	}
	var vs []ColorVertex
	for _, c := range f.Commands {
		if vb, ok := c.(recording.SetVertexBufferCommand); ok {
			vs = vb.ColorVertices()
		}
	}
	if len(vs) != 2 || vs[0].R != 1 || vs[0].B != 0 || vs[1].B != 1 || vs[1].R != 0 {
		t.Errorf("vertices = %+v, want red then blue", vs)
	}
}

func TestFixedPoolExhaustion(t *testing.T) {
	r, _ := newTestRenderer(t, func(e Engine) {
		e.DrawPoint(Pt(0, 0), White)
		e.DrawLine(Pt(0, 0), Pt(1, 1), White)
	}, WithPoolPolicy(PoolFixed), WithInitialClients(1), WithPipelineDepth(1))
	expectPanic(t, pool.ErrExhausted, func() { _, _ = r.RenderFrame() })
}

func TestPoolGrowsOnDemand(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		e.DrawPoint(Pt(0, 0), White)
		e.DrawLine(Pt(0, 0), Pt(1, 1), White)
	}, WithInitialClients(1), WithPipelineDepth(1))
	mustRender(t, r)
	if got := len(dev.Buffers()); got != 2 {
		t.Errorf("buffers = %d, want 2 after one grow", got)
	}
}

func TestDrawText(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		f, err := e.CreateFont(FontProportional, WeightBold, 18)
		if err != nil {
			t.Error(err)
			return
		}
		e.DrawRect(0, 0, 50, 50, Green)
		e.DrawText("Hello, world", f, White, 0, 0, 200, 50, AlignCenter, AlignMiddle)
	}, WithViewport(200, 50))
	mustRender(t, r)
	mustRender(t, r)

	f := dev.Frame(1)
	types := f.Types()
	if n := len(types); n < 2 || types[n-2] != recording.CmdDraw {
		t.Fatalf("Types() = %v", types)
	}
	d := draws(f)
	if last := d[len(d)-1]; last.Count != 6 {
		t.Errorf("text layer draw = %+v, want one rect", last)
	}
	// The layer texture is in flight from frame 0, so frame 1 replaced it.
	if s := r.Stats(); s.Textures.Replacements != 1 || s.Fonts != 1 {
		t.Errorf("Stats() = %v", s)
	}

	dev.CompleteAll()
	if s := r.Stats().Textures; s.Orphans != 0 {
		t.Errorf("orphans after completion = %d", s.Orphans)
	}
}

func TestResizeRecreatesTextLayer(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		f, err := e.CreateFont(FontMonospaced, WeightMedium, 12)
		if err != nil {
			t.Error(err)
			return
		}
		w, h := e.ViewportSize()
		e.DrawText("fps", f, White, 0, 0, w, h, AlignLeft, AlignTop)
	}, WithViewport(200, 50))
	mustRender(t, r)
	dev.CompleteAll()

	r.Resize(100, 40)
	mustRender(t, r)
	dev.CompleteAll()

	textures := dev.Textures()
	if len(textures) != 2 {
		t.Fatalf("created %d textures, want 2", len(textures))
	}
	if !textures[0].Destroyed() {
		t.Error("text layer of the old size not destroyed")
	}
	if cur := textures[1]; cur.Destroyed() || cur.Width() != 100 || cur.Height() != 40 {
		t.Errorf("text layer = %dx%d destroyed=%v, want live 100x40", cur.Width(), cur.Height(), cur.Destroyed())
	}
}

func TestFrameTiming(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	var deltas, stamps []time.Duration
	r, dev := newTestRenderer(t, func(e Engine) {
		deltas = append(deltas, e.FrameDelta())
		stamps = append(stamps, e.FrameTimestamp())
	}, WithClock(func() time.Time { return now }))

	for _, step := range []time.Duration{16 * time.Millisecond, 17 * time.Millisecond} {
		now = now.Add(step)
		mustRender(t, r)
		dev.CompleteAll()
	}
	if !slices.Equal(deltas, []time.Duration{16 * time.Millisecond, 17 * time.Millisecond}) {
		t.Errorf("deltas = %v", deltas)
	}
	if stamps[1] != 33*time.Millisecond {
		t.Errorf("timestamp = %v, want 33ms", stamps[1])
	}
}

func TestConcurrentCompletion(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) {
		for i := 0; i < 50; i++ {
			e.DrawLine(Pt(0, float32(i)), Pt(100, float32(i)), Yellow)
		}
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				dev.CompleteAll()
			}
		}
	}()

	rendered := 0
	for rendered < 100 {
		ok, err := r.RenderFrame()
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			rendered++
		}
	}
	close(stop)
	wg.Wait()
	dev.CompleteAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	s := r.Stats().Buffers
	if s.Free != s.Total {
		t.Errorf("buffer stats = %v, want all free", s)
	}
}

func TestClose(t *testing.T) {
	r, dev := newTestRenderer(t, func(e Engine) { e.DrawPoint(Pt(1, 1), White) })
	mustRender(t, r)

	if err := r.Close(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Close with frame in flight = %v, want ErrBusy", err)
	}
	dev.CompleteAll()
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if dev.LiveBuffers() != 0 {
		t.Errorf("%d buffers leaked", dev.LiveBuffers())
	}
	if _, err := r.RenderFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame after Close = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestRun(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx, 500); err != nil {
		t.Fatal(err)
	}
	if len(dev.Frames()) == 0 {
		t.Error("Run rendered no frames")
	}
	if err := r.Run(context.Background(), 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Run(fps 0) = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"tiny buffer", WithBufferSize(16), true},
		{"zero clients", WithInitialClients(0), true},
		{"zero frames in flight", WithMaxFramesInFlight(0), true},
		{"negative max buffers", WithMaxBuffers(-1), true},
		{"max below preinflation", WithMaxBuffers(5), true},
		{"zero first id", WithFirstFrameID(0), true},
		{"empty viewport", WithViewport(0, 10), true},
		{"nil clock", WithClock(nil), true},
		{"fixed policy", WithPoolPolicy(PoolFixed), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.opt(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
