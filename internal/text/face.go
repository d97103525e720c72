// Package text lays out and rasterises the strings an Engine client draws.
//
// Glyph outlines come from the Go fonts bundled with golang.org/x/image.
// Line widths for wrapping and alignment are measured with go-text's
// HarfBuzz shaper so kerning and ligatures are accounted for; glyphs are
// then drawn with x/image's font.Drawer into an RGBA layer.
package text

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	gtfont "github.com/go-text/typesetting/font"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// ErrInvalidHeight is returned for non-positive font heights.
var ErrInvalidHeight = errors.New("text: font height must be positive")

// Style selects the font family.
type Style uint8

const (
	// Proportional uses Go Regular / Go Bold.
	Proportional Style = iota
	// Monospaced uses Go Mono / Go Mono Bold.
	Monospaced
)

// String returns the style name.
func (s Style) String() string {
	if s == Monospaced {
		return "Monospaced"
	}
	return "Proportional"
}

// Weight selects the font weight.
type Weight uint8

const (
	Medium Weight = iota
	Bold
)

// String returns the weight name.
func (w Weight) String() string {
	if w == Bold {
		return "Bold"
	}
	return "Medium"
}

type faceKey struct {
	style  Style
	weight Weight
	height float64
}

// source is one parsed font file, shared by every size.
type source struct {
	ot *opentype.Font
	gt *gtfont.Font
}

// Face is a font at one size.
type Face struct {
	key     faceKey
	draw    font.Face
	shape   *gtfont.Face
	metrics font.Metrics
}

// Style returns the face's family.
func (f *Face) Style() Style { return f.key.style }

// Weight returns the face's weight.
func (f *Face) Weight() Weight { return f.key.weight }

// Height returns the requested font height in pixels.
func (f *Face) Height() float64 { return f.key.height }

// LineHeight returns the distance between consecutive baselines.
func (f *Face) LineHeight() float64 { return fixedToFloat(f.metrics.Height) }

// Ascent returns the distance from the top of a line to its baseline.
func (f *Face) Ascent() float64 { return fixedToFloat(f.metrics.Ascent) }

// String returns a debug description.
func (f *Face) String() string {
	return fmt.Sprintf("%v %v %.1fpx", f.key.style, f.key.weight, f.key.height)
}

// Library parses the bundled fonts once and caches faces by style, weight
// and height. Safe for concurrent use; faces are not.
type Library struct {
	mu      sync.Mutex
	sources map[[2]uint8]*source
	faces   map[faceKey]*Face
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		sources: make(map[[2]uint8]*source),
		faces:   make(map[faceKey]*Face),
	}
}

// Face returns the cached face for style, weight and height, creating it on
// first use.
func (l *Library) Face(style Style, weight Weight, height float64) (*Face, error) {
	if height <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeight, height)
	}
	key := faceKey{style, weight, height}

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.faces[key]; ok {
		return f, nil
	}
	src, err := l.sourceLocked(style, weight)
	if err != nil {
		return nil, err
	}
	draw, err := opentype.NewFace(src.ot, &opentype.FaceOptions{
		Size:    height,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("text: face %v %v %v: %w", style, weight, height, err)
	}
	f := &Face{
		key:     key,
		draw:    draw,
		shape:   gtfont.NewFace(src.gt),
		metrics: draw.Metrics(),
	}
	l.faces[key] = f
	return f, nil
}

// Len returns the number of cached faces.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.faces)
}

// Close releases every cached face.
func (l *Library) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, f := range l.faces {
		_ = f.draw.Close()
		delete(l.faces, k)
	}
}

func (l *Library) sourceLocked(style Style, weight Weight) (*source, error) {
	k := [2]uint8{uint8(style), uint8(weight)}
	if s, ok := l.sources[k]; ok {
		return s, nil
	}
	data := fontData(style, weight)
	ot, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("text: parse %v %v: %w", style, weight, err)
	}
	gt, err := gtfont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("text: parse %v %v for shaping: %w", style, weight, err)
	}
	s := &source{ot: ot, gt: gt.Font}
	l.sources[k] = s
	return s, nil
}

func fontData(style Style, weight Weight) []byte {
	switch {
	case style == Monospaced && weight == Bold:
		return gomonobold.TTF
	case style == Monospaced:
		return gomono.TTF
	case weight == Bold:
		return gobold.TTF
	default:
		return goregular.TTF
	}
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
