package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.APIKey != "tvly-test" {
			t.Errorf("api_key = %q", req.APIKey)
		}
		if req.Query != "capital of france" {
			t.Errorf("query = %q", req.Query)
		}
		if !req.IncludeAnswer {
			t.Error("include_answer not set")
		}
		json.NewEncoder(w).Encode(Response{
			Answer:  "Paris is the capital of France.",
			Results: []Result{{Title: "Paris", URL: "https://example.com", Content: "Capital city."}},
		})
	}))
	defer srv.Close()

	c, err := New("tvly-test", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Search(context.Background(), "capital of france")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Answer == "" || len(resp.Results) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	c, err := New("tvly-test")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Search(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestSearch_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New("bad-key", WithEndpoint(srv.URL))
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(&Response{Answer: "42"}); got != "42" {
		t.Errorf("Summarize answer = %q", got)
	}

	resp := &Response{Results: []Result{
		{Title: "A", Content: "first snippet"},
		{Title: "B", Content: "second snippet"},
		{Title: "C", Content: "third snippet"},
	}}
	got := Summarize(resp)
	if got != "A: first snippet B: second snippet" {
		t.Errorf("Summarize results = %q", got)
	}

	if got := Summarize(nil); got != "" {
		t.Errorf("Summarize(nil) = %q", got)
	}
}
