// Package extract turns raw page HTML into model-ready markdown.
//
// The reduction matters twice: it cuts token spend and it strips the
// scripts, trackers and boilerplate that drown the links and prose the
// models are asked about.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/curator/internal/store"
)

// ErrNoContent is returned when a page reduces to nothing usable.
var ErrNoContent = errors.New("extract: no usable content")

// Document is the preprocessed form of one page.
type Document struct {
	Title    string
	Markdown string
	Stats    store.PreprocessStats
}

// Preprocessor sanitizes HTML and converts it to markdown. Safe for
// reuse across pages; construct once per run.
type Preprocessor struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// New creates a Preprocessor with the standard sanitize + convert chain.
func New() *Preprocessor {
	policy := bluemonday.UGCPolicy()
	// rel="nofollow" would survive into the markdown as noise.
	policy.RequireNoFollowOnLinks(false)
	return &Preprocessor{
		policy: policy,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Preprocess converts raw page HTML into markdown with relative links
// resolved against pageURL, and reports reduction stats.
func (p *Preprocessor) Preprocess(rawHTML []byte, pageURL string) (*Document, error) {
	title, anchors := inspect(rawHTML)

	clean := p.policy.SanitizeBytes(rawHTML)
	md, err := p.conv.ConvertString(string(clean), converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("extract: convert %s: %w", pageURL, err)
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, pageURL)
	}

	return &Document{
		Title:    title,
		Markdown: md,
		Stats: store.PreprocessStats{
			HTMLBytes:      len(rawHTML),
			MarkdownBytes:  len(md),
			TokenEstimate:  EstimateTokens(md),
			AnchorCount:    anchors,
			PrintableRatio: printableRatio(md),
		},
	}, nil
}

// EstimateTokens approximates the model token count of text. Four
// characters per token tracks English prose closely enough for
// budgeting and stats.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// inspect parses the raw HTML for the <title> text and the number of
// anchors with an href. Parse errors yield zero values; x/net/html is
// lenient and real pages rarely fail outright.
func inspect(rawHTML []byte) (title string, anchors int) {
	doc, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return "", 0
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.A:
				for _, a := range n.Attr {
					if a.Key == "href" && a.Val != "" {
						anchors++
						break
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, anchors
}

// printableRatio is the fraction of printable, non-replacement runes.
// A low ratio flags binary garbage or broken encodings masquerading as
// a page.
func printableRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total, printable := 0, 0
	for _, r := range text {
		total++
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable) / float64(total)
}
