package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/curator/internal/extract"
	"github.com/hazyhaar/curator/internal/store"
)

// Classifier asks a model whether a page is AI safety research worth
// including in the review dataset.
type Classifier struct {
	client *Client
}

// NewClassifier creates a Classifier over the given client.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify runs the classification prompt for one preprocessed page.
func (c *Classifier) Classify(ctx context.Context, url string, doc *extract.Document) (*store.ClassificationResult, Usage, error) {
	prompt, err := renderPrompt(classifyTmpl, promptData{
		URL: url, Title: doc.Title, Markdown: doc.Markdown,
	})
	if err != nil {
		return nil, Usage{}, err
	}

	answer, usage, err := c.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}

	raw, err := ExtractJSON(answer)
	if err != nil {
		return nil, usage, err
	}
	var res store.ClassificationResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, usage, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	res.AISafetyRelevance = clamp01(res.AISafetyRelevance)
	res.ShallowReviewInclusion = clamp01(res.ShallowReviewInclusion)
	res.Confidence = clamp01(res.Confidence)
	if res.Title == "" {
		res.Title = doc.Title
	}
	return &res, usage, nil
}
