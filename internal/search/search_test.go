package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultHTML = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.com/one">First Result</a>
  <a class="result__snippet" href="https://example.com/one">Snippet one here</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Ftwo&amp;rut=abc">Second Result</a>
</div>
<div class="nav-link">not a result</div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(resultHTML, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "First Result", results[0].Title)
	assert.Equal(t, "https://example.com/one", results[0].URL)
	assert.Equal(t, "Snippet one here", results[0].Snippet)

	// Redirect link unwrapped and rut param stripped.
	assert.Equal(t, "https://example.com/two", results[1].URL)
}

func TestParseResults_CapsAtMax(t *testing.T) {
	var page string
	for i := 0; i < 10; i++ {
		page += fmt.Sprintf(`<div class="result results_links"><a class="result__a" href="https://example.com/%d">R%d</a></div>`, i, i)
	}
	results, err := parseResults("<html><body>"+page+"</body></html>", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestMergeResults_NewsFirstDedupCapped(t *testing.T) {
	news := []Result{
		{Title: "n1", URL: "https://a"},
		{Title: "n2", URL: "https://b"},
	}
	text := []Result{
		{Title: "t1", URL: "https://b"}, // dup of n2
		{Title: "t2", URL: "https://c"},
		{Title: "t3", URL: "https://d"},
		{Title: "t4", URL: "https://e"},
		{Title: "t5", URL: "https://f"},
	}

	got := mergeResults(news, text, 5)
	require.Len(t, got, 5)
	assert.Equal(t, "n1", got[0].Title)
	assert.Equal(t, "n2", got[1].Title)
	assert.Equal(t, "t2", got[2].Title)
	assert.Equal(t, "t5", got[4].Title)
}

func TestLookup_SurvivesOneLegFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ia") == "news" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, resultHTML)
	}))
	defer srv.Close()

	c := &Client{httpClient: srv.Client(), baseURL: srv.URL}
	results, err := c.Lookup(context.Background(), "SHOP.TO news")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLookup_BothLegsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Client{httpClient: srv.Client(), baseURL: srv.URL}
	results, err := c.Lookup(context.Background(), "anything")
	assert.Error(t, err)
	assert.Empty(t, results)
}
