package deck

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDeck = `# Welcome

Intro text.

---

## Second slide

- one
- two

---

## Last slide

| a | b |
|---|---|
| 1 | 2 |
`

func TestParseSplitsOnDelimiters(t *testing.T) {
	d, err := Parse([]byte(sampleDeck))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d.Len() != 3 {
		t.Fatalf("expected 3 slides, got %d", d.Len())
	}

	if !strings.Contains(d.Slides[0].HTML, "<h1") {
		t.Errorf("first slide missing heading: %q", d.Slides[0].HTML)
	}
	if !strings.Contains(d.Slides[1].HTML, "<li>") {
		t.Errorf("second slide missing list: %q", d.Slides[1].HTML)
	}
	// GFM tables only render with the extension enabled.
	if !strings.Contains(d.Slides[2].HTML, "<table>") {
		t.Errorf("third slide missing table: %q", d.Slides[2].HTML)
	}
}

func TestParseSkipsEmptySegments(t *testing.T) {
	d, err := Parse([]byte("---\n\n# Only slide\n\n---\n\n---\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 slide, got %d", d.Len())
	}
}

func TestParseRejectsEmptyDeck(t *testing.T) {
	if _, err := Parse([]byte("\n---\n\n")); err == nil {
		t.Error("expected an error for an empty deck")
	}
}

func TestParseHandlesCRLF(t *testing.T) {
	d, err := Parse([]byte("# One\r\n---\r\n# Two\r\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("expected 2 slides, got %d", d.Len())
	}
}

func TestHTMLClampsIndex(t *testing.T) {
	d, err := Parse([]byte("# A\n---\n# B\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if d.HTML(-5) != d.Slides[0].HTML {
		t.Error("negative index must clamp to the first slide")
	}
	if d.HTML(99) != d.Slides[1].HTML {
		t.Error("overrun index must clamp to the last slide")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.md")
	if err := os.WriteFile(path, []byte(sampleDeck), 0o644); err != nil {
		t.Fatalf("failed to write deck: %v", err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if d.Len() != 3 {
		t.Errorf("expected 3 slides, got %d", d.Len())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
