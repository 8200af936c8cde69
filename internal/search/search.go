package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
}

// Query describes a search request. OwnerID is mandatory; results never
// cross user boundaries.
type Query struct {
	Text    string
	OwnerID string
	Status  string // empty = any status
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over decisions.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DecisionRecord is the data we index for a decision.
type DecisionRecord struct {
	ID              string `json:"id"`
	OwnerID         string `json:"ownerId"`
	Title           string `json:"title"`
	Context         string `json:"context"`
	ExpectedOutcome string `json:"expectedOutcome"`
	Status          string `json:"status"`
	ReviewText      string `json:"reviewText"`
}
