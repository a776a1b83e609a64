package protocol

import (
	"encoding/json"
	"strings"
)

// Mirror is the decoded view of a presentation-content payload, independent
// of which wire encoding carried it.
type Mirror struct {
	HTML           string
	CurrentSlide   int
	TotalSlides    int
	ScrollPosition int
	// Structured reports whether the payload used the combined JSON
	// encoding. Legacy payloads carry no slide counters.
	Structured bool
}

// structuredContent is the combined encoding: the Content field of a
// presentation-content payload holding a JSON document instead of raw HTML.
type structuredContent struct {
	HTML           string `json:"html"`
	CurrentSlide   int    `json:"currentSlide"`
	TotalSlides    int    `json:"totalSlides"`
	ScrollPosition int    `json:"scrollPosition"`
}

// EncodeMirror produces a presentation-content payload in the structured
// encoding. ScrollPosition is duplicated at the payload level so legacy
// consumers that skip the inner document still scroll correctly.
func EncodeMirror(m Mirror) (ContentPayload, error) {
	inner := structuredContent{
		HTML:           m.HTML,
		CurrentSlide:   m.CurrentSlide,
		TotalSlides:    m.TotalSlides,
		ScrollPosition: m.ScrollPosition,
	}
	data, err := json.Marshal(inner)
	if err != nil {
		return ContentPayload{}, ErrInvalidPayload
	}
	return ContentPayload{
		Content:        string(data),
		ScrollPosition: m.ScrollPosition,
	}, nil
}

// DecodeMirror decodes both presentation-content encodings: structured
// first, raw HTML as the fallback. The fallback exists for compatibility
// with clients that predate the combined encoding, so a decode failure is
// never an error; the payload is simply treated as legacy HTML.
func DecodeMirror(p ContentPayload) Mirror {
	trimmed := strings.TrimSpace(p.Content)
	if strings.HasPrefix(trimmed, "{") {
		var inner structuredContent
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil && inner.HTML != "" {
			return Mirror{
				HTML:           inner.HTML,
				CurrentSlide:   inner.CurrentSlide,
				TotalSlides:    inner.TotalSlides,
				ScrollPosition: inner.ScrollPosition,
				Structured:     true,
			}
		}
	}

	return Mirror{
		HTML:           p.Content,
		ScrollPosition: p.ScrollPosition,
	}
}
