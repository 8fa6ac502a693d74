package store

// ScrapeRecord is one row of the page cache. A row describes either a
// successful fetch (StatusCode set, Error empty) or a failed one
// (Error set); the content itself lives on disk keyed by URLHash.
type ScrapeRecord struct {
	URL        string
	URLHash    string
	Kind       string // "collect" or "classify"
	FetchedAt  int64  // unix millis
	StatusCode *int64
	Error      string
}

// CollectRecord is one row of the link-extraction queue.
type CollectRecord struct {
	URL         string
	Status      Status
	Source      string
	AddedAt     int64  // unix millis
	ProcessedAt *int64 // set iff Status != new
	Data        *ExtractionResult
	Preprocess  *PreprocessStats
	Error       string // set iff Status is an error status
}

// ClassifyRecord is one row of the classification queue.
type ClassifyRecord struct {
	URL              string
	Status           Status
	Source           string
	SourceURL        string   // collect record that discovered this URL
	CollectRelevancy *float64 // relevancy assigned at extraction time
	AddedAt          int64
	ProcessedAt      *int64
	Data             *ClassificationResult
	Preprocess       *PreprocessStats
	Error            string
}

// Link is one outgoing link found on a collect page. Relevancy is nil
// when the extractor gave no score.
type Link struct {
	URL       string   `json:"url"`
	Text      string   `json:"text,omitempty"`
	Relevancy *float64 `json:"relevancy,omitempty"`
}

// ExtractionResult is the payload of a done collect record.
type ExtractionResult struct {
	Title        string  `json:"title"`
	Kind         string  `json:"kind,omitempty"` // e.g. "newsletter", "link list"
	QualityScore float64 `json:"quality_score"`
	Comments     string  `json:"comments,omitempty"`
	Links        []Link  `json:"links"`
}

// ClassificationResult is the payload of a done classify record.
type ClassificationResult struct {
	Title                  string   `json:"title"`
	Authors                []string `json:"authors,omitempty"`
	Summary                string   `json:"summary"`
	AISafetyRelevance      float64  `json:"ai_safety_relevance"`
	ShallowReviewInclusion float64  `json:"shallow_review_inclusion"`
	Categories             []string `json:"categories,omitempty"`
	Confidence             float64  `json:"confidence"`
}

// PreprocessStats describes the HTML→markdown reduction done before the
// page was handed to a model. Kept alongside the payload for diagnosis.
type PreprocessStats struct {
	HTMLBytes      int     `json:"html_bytes"`
	MarkdownBytes  int     `json:"markdown_bytes"`
	TokenEstimate  int     `json:"token_estimate"`
	AnchorCount    int     `json:"anchor_count"`
	PrintableRatio float64 `json:"printable_ratio"`
}
