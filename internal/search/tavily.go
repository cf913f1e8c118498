package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://api.tavily.com/search"
	NoResults       = "No relevant data found."
	notConfigured   = "Internet search is not configured."
)

var ErrMissingKey = errors.New("search: TAVILY_API_KEY is not set")

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher produces a text block of web findings for a question.
type Searcher interface {
	Context(ctx context.Context, query string) string
}

type Config struct {
	Endpoint   string
	APIKey     string
	Depth      string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Tavily struct {
	endpoint   string
	apiKey     string
	depth      string
	maxResults int
	client     *http.Client
	logger     *slog.Logger
}

func NewTavily(cfg Config) (*Tavily, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingKey
	}
	t := &Tavily{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		depth:      cfg.Depth,
		maxResults: cfg.MaxResults,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if t.endpoint == "" {
		t.endpoint = DefaultEndpoint
	}
	if t.depth == "" {
		t.depth = "advanced"
	}
	if t.maxResults <= 0 {
		t.maxResults = 4
	}
	if t.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		t.client = &http.Client{Timeout: timeout}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t, nil
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, SearchDepth: t.depth, MaxResults: t.maxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	return out.Results, nil
}

// Context formats search results as "- content (url)" lines. Failures are
// returned as text so the conversation can go on without web data.
func (t *Tavily) Context(ctx context.Context, query string) string {
	results, err := t.Search(ctx, query)
	if err != nil {
		t.logger.Warn("web search failed", "err", err)
		return "Search error: " + err.Error()
	}
	return Format(results)
}

func Format(results []Result) string {
	var lines []string
	for _, r := range results {
		content := strings.Join(strings.Fields(r.Content), " ")
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", content, r.URL))
	}
	if len(lines) == 0 {
		return NoResults
	}
	return strings.Join(lines, "\n")
}

// Disabled is used when no search key is configured.
type Disabled struct{}

func (Disabled) Context(ctx context.Context, query string) string { return notConfigured }

var (
	_ Searcher = (*Tavily)(nil)
	_ Searcher = Disabled{}
)
