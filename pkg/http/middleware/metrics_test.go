package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"CoinTrend/pkg/logger"
)

func TestHTTPMetrics_LabelsByRoute(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware(logger.Nop(), 0))
	e.GET("/symbols/:base/:quote", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("db down") })

	for _, path := range []string{"/symbols/BTC/USDT", "/symbols/ETH/USDT", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/symbols/:base/:quote", "GET", "200")); got != 2 {
		t.Fatalf("route count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/boom", "GET", "500")); got != 1 {
		t.Fatalf("error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v after requests finished", got)
	}
}

func TestRecover_ReturnsServerError(t *testing.T) {
	e := echo.New()
	e.Use(Recover(logger.Nop()))
	e.GET("/panic", func(echo.Context) error { panic("nil map") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
