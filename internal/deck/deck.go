// Package deck loads markdown slide decks for the presenter command. The
// relay core never imports it; rendered HTML crosses the protocol boundary
// as opaque content.
package deck

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Slide is one rendered slide.
type Slide struct {
	Markdown string
	HTML     string
}

// Deck is an ordered set of slides parsed from a single markdown file.
type Deck struct {
	Slides []Slide
}

// rendererInstance is initialized once and reused. The goldmark
// configuration never changes and the Markdown object is safe to share.
var (
	rendererInstance goldmark.Markdown
	rendererOnce     sync.Once
)

func renderer() goldmark.Markdown {
	rendererOnce.Do(func() {
		rendererInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
		)
	})
	return rendererInstance
}

// Load reads and parses a deck file.
func Load(path string) (*Deck, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck %s: %w", path, err)
	}
	return Parse(src)
}

// Parse splits markdown into slides on standalone "---" delimiter lines and
// renders each slide to HTML.
func Parse(src []byte) (*Deck, error) {
	normalized := strings.ReplaceAll(string(src), "\r\n", "\n")

	var (
		slides  []string
		current []string
	)
	for _, line := range strings.Split(normalized, "\n") {
		if strings.TrimSpace(line) == "---" {
			slides = append(slides, strings.Join(current, "\n"))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	slides = append(slides, strings.Join(current, "\n"))

	d := &Deck{}
	for _, md := range slides {
		trimmed := strings.TrimSpace(md)
		if trimmed == "" {
			continue
		}

		var buf bytes.Buffer
		if err := renderer().Convert([]byte(trimmed), &buf); err != nil {
			return nil, fmt.Errorf("failed to render slide: %w", err)
		}
		d.Slides = append(d.Slides, Slide{
			Markdown: trimmed,
			HTML:     buf.String(),
		})
	}

	if len(d.Slides) == 0 {
		return nil, fmt.Errorf("deck contains no slides")
	}

	return d, nil
}

// Len reports the number of slides.
func (d *Deck) Len() int {
	return len(d.Slides)
}

// HTML returns the rendered HTML for slide i, clamped to the deck bounds.
func (d *Deck) HTML(i int) string {
	if len(d.Slides) == 0 {
		return ""
	}
	if i < 0 {
		i = 0
	}
	if i >= len(d.Slides) {
		i = len(d.Slides) - 1
	}
	return d.Slides[i].HTML
}
