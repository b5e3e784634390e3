package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHTTPFetcher_FetchCurrentPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price/current", r.URL.Path)
		require.Equal(t, "ETH", r.URL.Query().Get("asset"))
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"price":"3400.50"}`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, "test-key")
	price, err := f.FetchCurrentPrice(context.Background(), "ETH")
	require.NoError(t, err)
	require.True(t, price.Equal(mustDecimal("3400.50")))
}

func TestHTTPFetcher_FetchHistoricalPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price/historical", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("at"))
		w.Write([]byte(`{"price":"3500.00"}`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, "")
	price, err := f.FetchHistoricalPrice(context.Background(), "ETH", time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.True(t, price.Equal(mustDecimal("3500.00")))
}

func TestHTTPFetcher_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, "")
	_, err := f.FetchSTETHRate(context.Background())
	require.Error(t, err)
}
