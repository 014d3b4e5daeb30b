// Package prices quotes tickers off Yahoo Finance's chart API. A short
// in-memory cache keeps repeated snapshot builds from hammering the API.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"finsight/internal/logging"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	cacheTTL       = 60 * time.Second
	httpTimeout    = 10 * time.Second

	// FallbackUSDCAD is used when the live FX quote cannot be fetched.
	FallbackUSDCAD = 1.36
)

// Quote is one ticker's current pricing.
type Quote struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	CADPrice  float64 `json:"cad_price"`
	Currency  string  `json:"currency"`
	ChangePct float64 `json:"change_pct"`
	Name      string  `json:"name"`
	Err       string  `json:"error,omitempty"`
}

// Bar is one OHLCV history entry.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type cacheEntry struct {
	at   time.Time
	data any
}

// Service fetches and caches quotes.
type Service struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService() *Service {
	return &Service{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    defaultBaseURL,
		cache:      make(map[string]cacheEntry),
	}
}

func (s *Service) cached(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.at) >= cacheTTL {
		return nil, false
	}
	return entry.data, true
}

func (s *Service) setCached(key string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{at: time.Now(), data: data}
}

// Current returns the quote for one ticker. Failures degrade to a zero
// quote with Err set; portfolio math then falls back to cost basis.
func (s *Service) Current(ctx context.Context, ticker string) Quote {
	key := "price:" + ticker
	if v, ok := s.cached(key); ok {
		return v.(Quote)
	}

	q, err := s.fetchQuote(ctx, ticker)
	if err != nil {
		logging.Get(logging.CategoryPrices).Warn("quote fetch failed",
			zap.String("ticker", ticker), zap.Error(err))
		return Quote{Ticker: ticker, Currency: "CAD", Name: ticker, Err: err.Error()}
	}

	if q.Currency == "USD" {
		rate := s.USDCAD(ctx)
		q.CADPrice = round4(q.Price * rate)
	} else {
		q.CADPrice = q.Price
	}

	s.setCached(key, q)
	return q
}

// Batch fetches all tickers concurrently, keyed by ticker.
func (s *Service) Batch(ctx context.Context, tickers []string) map[string]Quote {
	out := make(map[string]Quote, len(tickers))
	if len(tickers) == 0 {
		return out
	}

	quotes := make([]Quote, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			quotes[i] = s.Current(gctx, ticker)
			return nil
		})
	}
	_ = g.Wait()

	for _, q := range quotes {
		out[q.Ticker] = q
	}
	return out
}

// USDCAD returns the live exchange rate, or FallbackUSDCAD when the quote
// cannot be fetched.
func (s *Service) USDCAD(ctx context.Context) float64 {
	if v, ok := s.cached("fx:USDCAD"); ok {
		return v.(float64)
	}
	q, err := s.fetchQuote(ctx, "USDCAD=X")
	if err != nil || q.Price <= 0 {
		logging.Get(logging.CategoryPrices).Warn("USDCAD fetch failed, using fallback", zap.Error(err))
		return FallbackUSDCAD
	}
	s.setCached("fx:USDCAD", q.Price)
	return q.Price
}

var validPeriods = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true, "1y": true, "5y": true,
}

// History returns OHLCV bars for the period. Unknown periods fall back to
// one month; failures return an empty list.
func (s *Service) History(ctx context.Context, ticker, period string) []Bar {
	if !validPeriods[period] {
		period = "1mo"
	}
	key := "hist:" + ticker + ":" + period
	if v, ok := s.cached(key); ok {
		return v.([]Bar)
	}

	bars, err := s.fetchChart(ctx, ticker, period)
	if err != nil {
		logging.Get(logging.CategoryPrices).Warn("history fetch failed",
			zap.String("ticker", ticker), zap.Error(err))
		return nil
	}
	s.setCached(key, bars)
	return bars
}

// chartResponse mirrors the slice of Yahoo's chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				ShortName          string  `json:"shortName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *Service) fetchQuote(ctx context.Context, ticker string) (Quote, error) {
	payload, err := s.getChart(ctx, ticker, "5d")
	if err != nil {
		return Quote{}, err
	}

	r := payload.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	prev := r.Meta.ChartPreviousClose
	changePct := 0.0
	if prev > 0 {
		changePct = round4((price - prev) / prev * 100)
	}

	currency := strings.ToUpper(r.Meta.Currency)
	if currency == "" {
		if strings.HasSuffix(ticker, ".TO") || strings.HasSuffix(ticker, "-CAD") {
			currency = "CAD"
		} else {
			currency = "USD"
		}
	}

	name := r.Meta.ShortName
	if name == "" {
		name = ticker
	}

	return Quote{
		Ticker:    ticker,
		Price:     price,
		Currency:  currency,
		ChangePct: changePct,
		Name:      name,
	}, nil
}

func (s *Service) fetchChart(ctx context.Context, ticker, period string) ([]Bar, error) {
	payload, err := s.getChart(ctx, ticker, period)
	if err != nil {
		return nil, err
	}

	r := payload.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := r.Indicators.Quote[0]

	var bars []Bar
	for i, ts := range r.Timestamp {
		if i >= len(q.Close) {
			break
		}
		bars = append(bars, Bar{
			Date:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Open:   round4(at(q.Open, i)),
			High:   round4(at(q.High, i)),
			Low:    round4(at(q.Low, i)),
			Close:  round4(at(q.Close, i)),
			Volume: atInt(q.Volume, i),
		})
	}
	return bars, nil
}

func (s *Service) getChart(ctx context.Context, ticker, period string) (*chartResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		s.baseURL, url.PathEscape(ticker), url.QueryEscape(period))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned HTTP %d for %s", resp.StatusCode, ticker)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chart response: %w", err)
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s", ticker, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s", ticker)
	}
	return &payload, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int64, i int) int64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func round4(v float64) float64 {
	return float64(int64(v*10000+sign(v)*0.5)) / 10000
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
