// Command ggdemo renders a starfield with the gg2d frame pipeline and
// optionally saves the last frame as PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/gogpu/gg2d"
	"github.com/gogpu/gg2d/backend/native"
	"github.com/gogpu/gg2d/device"
	_ "github.com/gogpu/gg2d/recording"
)

func main() {
	var (
		width   = flag.Int("width", 800, "viewport width")
		height  = flag.Int("height", 600, "viewport height")
		frames  = flag.Int("frames", 120, "frames to render")
		stars   = flag.Int("stars", 2000, "number of stars")
		backend = flag.String("device", "native", fmt.Sprintf("device implementation %v", device.Names()))
		output  = flag.String("output", "", "save the last frame as PNG (native device only)")
		verbose = flag.Bool("v", false, "log pipeline diagnostics")
	)
	flag.Parse()

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	gg2d.SetLogger(logger)

	dev, closeDev, err := device.Open(*backend, device.OpenOptions{
		Width:  *width,
		Height: *height,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer func() {
		if err := closeDev(); err != nil {
			log.Printf("Failed to close device: %v", err)
		}
	}()

	client := newStarfield(*stars)
	r, err := gg2d.NewRenderer(dev, client,
		gg2d.WithViewport(*width, *height),
		gg2d.WithBackgroundColor(gg2d.Hex("#05070f")),
		gg2d.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}

	rendered := 0
	for rendered < *frames {
		ok, err := r.RenderFrame()
		if err != nil {
			log.Fatalf("Frame failed: %v", err)
		}
		if ok {
			rendered++
		}
		if rec, isRec := dev.(interface{ CompleteAll() }); isRec {
			rec.CompleteAll()
		}
	}

	if *output != "" {
		if err := savePNG(dev, *output); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		log.Printf("Frame saved to %s (%dx%d)\n", *output, *width, *height)
	}

	if err := waitAndClose(r); err != nil {
		log.Fatalf("Failed to close renderer: %v", err)
	}
	log.Printf("Rendered %d frames: %v\n", rendered, r.Stats())
}

func savePNG(dev device.Device, path string) error {
	nd, ok := dev.(*native.Device)
	if !ok {
		return fmt.Errorf("device %T cannot read back frames", dev)
	}
	img, err := nd.Snapshot()
	if err != nil {
		return err
	}
	if img == nil {
		return errors.New("device has no offscreen target")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func waitAndClose(r *gg2d.Renderer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		return err
	}
	return r.Close()
}

// star is a point moving away from the viewport centre.
type star struct {
	angle, dist, speed float32
	hue                float32
}

// starfield is the demo client.
type starfield struct {
	rng   *rand.Rand
	stars []star

	logo  gg2d.TextureID
	title *gg2d.Font
	small *gg2d.Font
	frame int
}

func newStarfield(n int) *starfield {
	return &starfield{
		rng:   rand.New(rand.NewPCG(1, 2)),
		stars: make([]star, n),
	}
}

func (s *starfield) Setup(e gg2d.Engine) error {
	for i := range s.stars {
		s.stars[i] = s.spawn(float32(s.rng.Float64() * 400))
	}

	id, err := e.CreateTextureFromImage(checkerboard(64, 8), gg2d.FormatRGBA8)
	if err != nil {
		return err
	}
	s.logo = id

	if s.title, err = e.CreateFont(gg2d.FontProportional, gg2d.WeightBold, 32); err != nil {
		return err
	}
	s.small, err = e.CreateFont(gg2d.FontMonospaced, gg2d.WeightMedium, 12)
	return err
}

func (s *starfield) spawn(dist float32) star {
	return star{
		angle: float32(s.rng.Float64() * 2 * math.Pi),
		dist:  dist,
		speed: 20 + float32(s.rng.Float64()*180),
		hue:   float32(s.rng.Float64() * 360),
	}
}

func (s *starfield) Frame(e gg2d.Engine) {
	s.frame++
	w, h := e.ViewportSize()
	cx, cy := w/2, h/2
	dt := float32(e.FrameDelta().Seconds())
	if dt > 0.1 {
		dt = 0.1
	}

	for i := range s.stars {
		st := &s.stars[i]
		st.dist += st.speed * dt
		x := cx + st.dist*float32(math.Cos(float64(st.angle)))
		y := cy + st.dist*float32(math.Sin(float64(st.angle)))
		if x < 0 || x > w || y < 0 || y > h {
			*st = s.spawn(0)
			continue
		}
		c := gg2d.HSL(st.hue, 0.6, 0.8)
		if st.speed > 150 {
			tail := st.dist - st.speed*0.05
			tx := cx + tail*float32(math.Cos(float64(st.angle)))
			ty := cy + tail*float32(math.Sin(float64(st.angle)))
			e.DrawColoredLine(
				gg2d.ColorVertex{X: tx, Y: ty, R: c.R, G: c.G, B: c.B, A: 0},
				gg2d.ColorVertex{X: x, Y: y, R: c.R, G: c.G, B: c.B, A: c.A},
			)
		} else {
			e.DrawPoint(gg2d.Pt(x, y), c)
		}
	}

	// Spinning triangle fan in the centre.
	spin := float32(e.FrameTimestamp().Seconds())
	for i := 0; i < 6; i++ {
		a0 := spin + float32(i)*math.Pi/3
		a1 := a0 + math.Pi/3
		e.DrawColoredTriangle(
			gg2d.ColorVertex{X: cx, Y: cy, R: 1, G: 1, B: 1, A: 1},
			vertexAt(cx, cy, a0, 40, gg2d.HSL(float32(i)*60, 0.9, 0.5)),
			vertexAt(cx, cy, a1, 40, gg2d.HSL(float32(i+1)*60, 0.9, 0.5)),
		)
	}

	e.DrawTexturedRect(s.logo, 16, h-80, 64, 64)
	e.DrawRect(0, 0, w, 48, gg2d.RGBA(0, 0, 0, 0.5))
	e.DrawText("gg2d starfield", s.title, gg2d.White, 0, 0, w, 48, gg2d.AlignCenter, gg2d.AlignMiddle)
	e.DrawText(fmt.Sprintf("frame %d  dt %.1fms", s.frame, dt*1000), s.small, gg2d.Yellow,
		8, 0, w-16, h-8, gg2d.AlignRight, gg2d.AlignBottom)
}

func vertexAt(cx, cy, angle, r float32, c gg2d.Color) gg2d.ColorVertex {
	return gg2d.ColorVertex{
		X: cx + r*float32(math.Cos(float64(angle))),
		Y: cy + r*float32(math.Sin(float64(angle))),
		R: c.R, G: c.G, B: c.B, A: c.A,
	}
}

// checkerboard returns a size x size image of cell-sized squares.
func checkerboard(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			v := uint8(60)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			img.Pix[i+0], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v/2, 255-v, 255
		}
	}
	return img
}
