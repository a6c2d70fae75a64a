// Package websearch answers factual questions through the Tavily search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.tavily.com/search"

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the Tavily answer for one query.
type Response struct {
	// Answer is Tavily's synthesized short answer, when requested.
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Client queries the Tavily API.
type Client struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint, for tests.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithMaxResults caps the number of hits requested. Defaults to 3; the
// output is read aloud, so more is rarely useful.
func WithMaxResults(n int) Option {
	return func(c *Client) { c.maxResults = n }
}

// New creates a Tavily client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("websearch: api key must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		maxResults: 3,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search runs one query and returns the parsed response.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("websearch: query must not be empty")
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("websearch: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("websearch: search returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}
	return &out, nil
}

// Summarize reduces a response to a single spoken-friendly string: the
// synthesized answer when present, otherwise the top result snippets.
func Summarize(resp *Response) string {
	if resp == nil {
		return ""
	}
	if resp.Answer != "" {
		return resp.Answer
	}
	var parts []string
	for _, r := range resp.Results {
		snippet := strings.TrimSpace(r.Content)
		if snippet == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.Title, snippet))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}
