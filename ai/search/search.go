// Package search provides web-search enrichment for generations.
// Search results become a context block plus citation annotations on
// the assistant message. Search failures never fail a generation.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/driftchat/driftchat/store"
)

// Mode selects how thorough the search should be.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

// Flat per-request search prices in USD. Search providers bill per
// request, not per token.
const (
	CostStandardUsd = 0.006
	CostDeepUsd     = 0.010
)

// Result is the outcome of one search call.
type Result struct {
	// Context is a formatted block ready to join the system prompt.
	Context string
	// Citations are the source annotations to attach to the message.
	Citations []store.Annotation
	// CostUsd is the flat price of this search.
	CostUsd float64
}

type searchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

// Searcher calls the external search API.
type Searcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSearcher builds a searcher against the configured endpoint.
// Requests are rate limited to stay inside provider quotas.
func NewSearcher(baseURL, apiKey string) *Searcher {
	return &Searcher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Enabled reports whether a search endpoint is configured.
func (s *Searcher) Enabled() bool {
	return s.baseURL != "" && s.apiKey != ""
}

// Search runs one query in the given mode.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode) (*Result, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("search is not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	maxResults := 5
	cost := CostStandardUsd
	if mode == ModeDeep {
		maxResults = 10
		cost = CostDeepUsd
	}

	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"mode":        string(mode),
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return &Result{CostUsd: cost}, nil
	}

	var sb strings.Builder
	sb.WriteString("Web search results:\n")
	citations := make([]store.Annotation, 0, len(parsed.Results))
	for i, hit := range parsed.Results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, hit.Title, hit.URL, hit.Snippet)
		citations = append(citations, store.Annotation{
			Type:  "citation",
			Title: hit.Title,
			URL:   hit.URL,
		})
	}

	return &Result{
		Context:   sb.String(),
		Citations: citations,
		CostUsd:   cost,
	}, nil
}
