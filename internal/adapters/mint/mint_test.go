package mint_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/oods/internal/adapters/mint"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(url string) *mint.Client {
	return mint.NewClient(mint.ClientConfig{BaseURL: url, RatePerSec: 1000, RetryWait: time.Millisecond})
}

func TestClient_PostsRequest(t *testing.T) {
	var got ports.MintRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mint", r.URL.Path)
		assert.Equal(t, "b1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"tx_id":"0xabc"}`))
	}))
	defer srv.Close()

	req := ports.MintRequest{LaunchID: "l1", BetID: "b1", Recipient: "0xa", Tokens: 1500}
	require.NoError(t, newClient(srv.URL+"/").Mint(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Mint(context.Background(), ports.MintRequest{BetID: "b1", Tokens: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown launch", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Mint(context.Background(), ports.MintRequest{BetID: "b1", Tokens: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown launch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newClient(srv.URL).Mint(context.Background(), ports.MintRequest{BetID: "b1", Tokens: 1})
	assert.ErrorContains(t, err, "server error 500")
}

func TestClient_HonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	began := time.Now()
	err := newClient(srv.URL).Mint(context.Background(), ports.MintRequest{BetID: "b1", Tokens: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	// sin Retry-After la espera sería de 1ms
	assert.GreaterOrEqual(t, time.Since(began), 900*time.Millisecond)
}

func TestClient_RetryWaitStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := newClient(srv.URL).Mint(ctx, ports.MintRequest{BetID: "b1", Tokens: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ZeroTokensSkipsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call")
	}))
	defer srv.Close()

	assert.NoError(t, newClient(srv.URL).Mint(context.Background(), ports.MintRequest{BetID: "b1"}))
}

func TestLedger_IdempotentPerBet(t *testing.T) {
	l := mint.NewLedger()
	ctx := context.Background()
	req := ports.MintRequest{LaunchID: "l1", BetID: "b1", Recipient: "0xa", Tokens: 10}

	require.NoError(t, l.Mint(ctx, req))
	require.NoError(t, l.Mint(ctx, req))
	require.NoError(t, l.Mint(ctx, ports.MintRequest{LaunchID: "l1", BetID: "b2", Recipient: "0xa", Tokens: 5}))

	assert.Equal(t, uint64(15), l.BalanceOf("0xa"))
	assert.Equal(t, uint64(15), l.Minted("l1"))
}
