package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/curator/internal/extract"
	"github.com/hazyhaar/curator/internal/store"
)

// Extractor asks a model for the research links on an aggregator page.
type Extractor struct {
	client *Client
}

// NewExtractor creates an Extractor over the given client.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// ExtractLinks runs the extraction prompt for one preprocessed page.
// Undecodable answers wrap ErrBadResponse.
func (e *Extractor) ExtractLinks(ctx context.Context, url string, doc *extract.Document) (*store.ExtractionResult, Usage, error) {
	prompt, err := renderPrompt(extractTmpl, promptData{
		URL: url, Title: doc.Title, Markdown: doc.Markdown,
	})
	if err != nil {
		return nil, Usage{}, err
	}

	answer, usage, err := e.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}

	raw, err := ExtractJSON(answer)
	if err != nil {
		return nil, usage, err
	}
	var res store.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, usage, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	res.Links = cleanLinks(res.Links)
	if res.Title == "" {
		res.Title = doc.Title
	}
	return &res, usage, nil
}

// cleanLinks drops malformed entries and clamps relevancies to [0, 1].
func cleanLinks(links []store.Link) []store.Link {
	out := links[:0]
	for _, l := range links {
		l.URL = strings.TrimSpace(l.URL)
		if !strings.HasPrefix(l.URL, "http://") && !strings.HasPrefix(l.URL, "https://") {
			continue
		}
		if l.Relevancy != nil {
			v := clamp01(*l.Relevancy)
			l.Relevancy = &v
		}
		out = append(out, l)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
