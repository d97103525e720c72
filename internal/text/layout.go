package text

import (
	"strings"
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/gg2d/internal/lru"
)

// HAlign is the horizontal placement of each line within its box.
type HAlign uint8

const (
	AlignLeft HAlign = iota
	AlignCenter
	AlignRight
)

// VAlign is the vertical placement of the text block within its box.
type VAlign uint8

const (
	AlignTop VAlign = iota
	AlignMiddle
	AlignBottom
)

// WidthCacheSize bounds the number of memoised line widths per Shaper.
const WidthCacheSize = 1024

type widthKey struct {
	face faceKey
	text string
}

// Shaper measures runs of text. The zero value is ready to use. Not safe for
// concurrent use.
type Shaper struct {
	hb     shaping.HarfbuzzShaper
	widths *lru.Cache[widthKey, float64]
}

// Measure returns the advance width of s in pixels. s is a single line.
// Widths are memoised, so text redrawn every frame is shaped once.
func (sh *Shaper) Measure(face *Face, s string) float64 {
	if s == "" {
		return 0
	}
	if sh.widths == nil {
		sh.widths = lru.New[widthKey, float64](WidthCacheSize)
	}
	return sh.widths.GetOrCreate(widthKey{face.key, s}, func() float64 {
		return sh.shape(face, s)
	})
}

// WidthCacheStats reports the measurement cache counters.
func (sh *Shaper) WidthCacheStats() lru.Stats {
	if sh.widths == nil {
		return lru.Stats{Capacity: WidthCacheSize}
	}
	return sh.widths.Stats()
}

func (sh *Shaper) shape(face *Face, s string) float64 {
	runes := []rune(s)
	out := sh.hb.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      face.shape,
		Size:      fixed.Int26_6(face.key.height * 64),
		Script:    detectScript(runes),
		Language:  language.NewLanguage("en"),
	})
	return fixedToFloat(out.Advance)
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

// Line is one laid-out line.
type Line struct {
	Text  string
	Width float64
}

// Wrap normalises s to NFC, splits it at newlines and greedily wraps each
// paragraph at spaces so no line exceeds maxWidth. A single word wider than
// maxWidth gets a line of its own. maxWidth <= 0 disables wrapping.
func (sh *Shaper) Wrap(face *Face, s string, maxWidth float64) []Line {
	s = norm.NFC.String(s)
	var lines []Line
	for _, para := range strings.Split(s, "\n") {
		para = strings.TrimRight(para, "\r")
		if maxWidth <= 0 {
			lines = append(lines, Line{Text: para, Width: sh.Measure(face, para)})
			continue
		}
		lines = sh.wrapParagraph(lines, face, para, maxWidth)
	}
	return lines
}

func (sh *Shaper) wrapParagraph(lines []Line, face *Face, para string, maxWidth float64) []Line {
	words := strings.Fields(para)
	if len(words) == 0 {
		return append(lines, Line{})
	}
	cur := words[0]
	curWidth := sh.Measure(face, cur)
	for _, w := range words[1:] {
		candidate := cur + " " + w
		width := sh.Measure(face, candidate)
		if width <= maxWidth {
			cur, curWidth = candidate, width
			continue
		}
		lines = append(lines, Line{Text: cur, Width: curWidth})
		cur, curWidth = w, sh.Measure(face, w)
	}
	return append(lines, Line{Text: cur, Width: curWidth})
}

// Box is the rectangle text is laid out in, in pixels.
type Box struct {
	X, Y, Width, Height float64
}

// Placement is a laid-out line with its baseline origin.
type Placement struct {
	Line
	X, Baseline float64
}

// Place wraps s into box and positions every line per the alignments.
// Text may overflow the box vertically; clipping is left to the target.
func (sh *Shaper) Place(face *Face, s string, box Box, h HAlign, v VAlign) []Placement {
	lines := sh.Wrap(face, s, box.Width)
	lh := face.LineHeight()
	total := lh * float64(len(lines))

	top := box.Y
	switch v {
	case AlignMiddle:
		top += (box.Height - total) / 2
	case AlignBottom:
		top += box.Height - total
	}

	out := make([]Placement, len(lines))
	for i, l := range lines {
		x := box.X
		switch h {
		case AlignCenter:
			x += (box.Width - l.Width) / 2
		case AlignRight:
			x += box.Width - l.Width
		}
		out[i] = Placement{Line: l, X: x, Baseline: top + face.Ascent() + lh*float64(i)}
	}
	return out
}
