package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartJSON(currency string, price, prevClose float64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":%q,"regularMarketPrice":%v,"chartPreviousClose":%v,"shortName":"Test Co"},"timestamp":[1756339200,1756425600],"indicators":{"quote":[{"open":[10,11],"high":[12,13],"low":[9,10],"close":[11,12],"volume":[1000,2000]}]}}],"error":null}}`,
		currency, price, prevClose)
}

func testService(handler http.HandlerFunc) (*Service, *httptest.Server) {
	srv := httptest.NewServer(handler)
	s := NewService()
	s.httpClient = srv.Client()
	s.baseURL = srv.URL
	return s, srv
}

func TestCurrent_CADTicker(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON("CAD", 97.5, 100))
	})
	defer srv.Close()

	q := s.Current(context.Background(), "SHOP.TO")
	assert.Empty(t, q.Err)
	assert.Equal(t, 97.5, q.Price)
	assert.Equal(t, 97.5, q.CADPrice)
	assert.Equal(t, "CAD", q.Currency)
	assert.InDelta(t, -2.5, q.ChangePct, 1e-9)
}

func TestCurrent_USDTickerConverts(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "USDCAD=X") {
			fmt.Fprint(w, chartJSON("CAD", 1.35, 1.35))
			return
		}
		fmt.Fprint(w, chartJSON("USD", 200, 200))
	})
	defer srv.Close()

	q := s.Current(context.Background(), "AAPL")
	assert.Equal(t, "USD", q.Currency)
	assert.InDelta(t, 270, q.CADPrice, 1e-6)
}

func TestCurrent_CachesFor60s(t *testing.T) {
	var calls atomic.Int64
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chartJSON("CAD", 50, 50))
	})
	defer srv.Close()

	s.Current(context.Background(), "CNQ.TO")
	s.Current(context.Background(), "CNQ.TO")
	assert.Equal(t, int64(1), calls.Load())
}

func TestCurrent_FailureDegrades(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	q := s.Current(context.Background(), "XEQT.TO")
	assert.NotEmpty(t, q.Err)
	assert.Zero(t, q.Price)
	assert.Equal(t, "XEQT.TO", q.Ticker)
}

func TestUSDCAD_Fallback(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	assert.Equal(t, FallbackUSDCAD, s.USDCAD(context.Background()))
}

func TestBatch(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON("CAD", 42, 42))
	})
	defer srv.Close()

	quotes := s.Batch(context.Background(), []string{"SHOP.TO", "CNQ.TO", "VEQT.TO"})
	require.Len(t, quotes, 3)
	assert.Equal(t, 42.0, quotes["CNQ.TO"].Price)
}

func TestHistory(t *testing.T) {
	s, srv := testService(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "range=1mo")
		fmt.Fprint(w, chartJSON("CAD", 12, 11))
	})
	defer srv.Close()

	bars := s.History(context.Background(), "SHOP.TO", "bogus-period")
	require.Len(t, bars, 2)
	assert.Equal(t, 11.0, bars[0].Close)
	assert.Equal(t, int64(2000), bars[1].Volume)
	assert.Equal(t, "2025-08-28", bars[0].Date)
}
