// Package search fetches external context for a turn from DuckDuckGo's
// HTML endpoint. No API key, no client library: plain HTTP plus HTML
// parsing.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"finsight/internal/logging"
)

// Result is one citation surfaced to the user on the sources event.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

const (
	endpoint    = "https://html.duckduckgo.com/html/"
	maxResults  = 5
	httpTimeout = 30 * time.Second
	bodyLimit   = 1 << 20
)

// Client runs context lookups.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New() *Client {
	return &Client{httpClient: http.DefaultClient, baseURL: endpoint}
}

// NewWithEndpoint points the client at an alternate HTML endpoint, for
// proxies and tests. A nil httpClient uses http.DefaultClient.
func NewWithEndpoint(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// Lookup runs a news query and a text query concurrently and merges them
// news-first, deduplicated by URL, capped at five results. Either leg
// failing leaves the other's results intact; both failing returns the
// first error so the caller can mark the lookup degraded.
func (c *Client) Lookup(ctx context.Context, query string) ([]Result, error) {
	log := logging.Get(logging.CategorySearch)

	var news, text []Result
	var newsErr, textErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		news, newsErr = c.search(gctx, query, true)
		return nil
	})
	g.Go(func() error {
		text, textErr = c.search(gctx, query, false)
		return nil
	})
	_ = g.Wait()

	if newsErr != nil {
		log.Warn("news search failed", zap.String("query", query), zap.Error(newsErr))
	}
	if textErr != nil {
		log.Warn("text search failed", zap.String("query", query), zap.Error(textErr))
	}
	if newsErr != nil && textErr != nil {
		return nil, fmt.Errorf("context lookup failed: %w", newsErr)
	}

	merged := mergeResults(news, text, maxResults)
	log.Debug("context lookup complete",
		zap.String("query", query), zap.Int("results", len(merged)))
	return merged, nil
}

// mergeResults combines lists in priority order, dropping duplicate URLs,
// keeping at most max entries.
func mergeResults(primary, secondary []Result, max int) []Result {
	seen := make(map[string]bool)
	var out []Result
	for _, list := range [][]Result{primary, secondary} {
		for _, r := range list {
			if len(out) >= max {
				return out
			}
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, r)
		}
	}
	return out
}

func (c *Client) search(ctx context.Context, query string, newsOnly bool) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("kl", "ca-en")
	if newsOnly {
		q.Set("ia", "news")
		q.Set("iar", "news")
	}

	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-CA,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	return parseResults(string(body), maxResults)
}

// parseResults extracts results from DuckDuckGo's HTML. Result blocks are
// divs whose class carries both "result" and "results_links".
func parseResults(htmlContent string, max int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search HTML: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result") && strings.Contains(attr.Val, "results_links") {
					r := extractResult(n)
					if r.URL != "" && r.Title != "" {
						results = append(results, r)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractResult(n *html.Node) Result {
	var r Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				if strings.Contains(attr.Val, "result__a") {
					r.URL = attrValue(n, "href")
					r.Title = textContent(n)
				} else if strings.Contains(attr.Val, "result__snippet") {
					r.Snippet = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	// Unwrap DuckDuckGo redirect links.
	if strings.HasPrefix(r.URL, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(r.URL, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			r.URL = decoded
		}
	}
	return r
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
