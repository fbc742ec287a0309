// Package mint entrega las emisiones de tokens al colaborador de minting.
package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/oods/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultRatePerSec = 10
	defaultTimeout    = 10 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxRetryAfter = 30 * time.Second
)

// ClientConfig configura el Client. Los ceros toman los valores por defecto.
type ClientConfig struct {
	BaseURL    string
	RatePerSec float64
	Timeout    time.Duration
	// RetryWait es la espera base del backoff; los tests la bajan.
	RetryWait time.Duration
}

// Client implementa ports.Minter contra un servicio HTTP:
//
//	POST {base}/mint  {"launch_id","bet_id","recipient","tokens"}
//
// El servicio debe ser idempotente por bet_id: un reintento tras un timeout
// puede llegar dos veces.
type Client struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	retryWait time.Duration
}

var _ ports.Minter = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		retryWait: cfg.RetryWait,
	}
}

// mintResponse es opcional: un 2xx sin body también cuenta como éxito.
type mintResponse struct {
	TxID string `json:"tx_id"`
}

// Mint pide la emisión de req.Tokens. Las peticiones con 0 tokens no salen.
func (c *Client) Mint(ctx context.Context, req ports.MintRequest) error {
	if req.Tokens == 0 {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mint.Mint: marshal: %w", err)
	}

	var out mintResponse
	if err := c.doWithRetry(ctx, func() (*http.Response, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/mint", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		r.Header.Set("Idempotency-Key", req.BetID)
		return c.http.Do(r)
	}, &out); err != nil {
		return fmt.Errorf("mint.Mint: bet %s: %w", req.BetID, err)
	}

	slog.Debug("tokens minted",
		"launch", req.LaunchID, "bet", req.BetID, "recipient", req.Recipient,
		"tokens", req.Tokens, "tx", out.TxID)
	return nil
}

// doWithRetry reintenta errores de red, 429 y 5xx. La espera es exponencial
// salvo que el servicio mande Retry-After.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, lastErr, attempt-1); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = fmt.Errorf("request: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &retryableStatus{code: resp.StatusCode, after: retryAfter(resp.Header.Get("Retry-After"), time.Now())}
			slog.Warn("mint service unavailable", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("gave up after %d retries: %w", maxRetries, lastErr)
}

// retryableStatus es un 429/5xx; after es cero si no vino Retry-After.
type retryableStatus struct {
	code  int
	after time.Duration
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("server error %d", e.code)
}

// wait duerme antes del siguiente intento. Retry-After manda sobre el backoff,
// acotado a maxRetryAfter.
func (c *Client) wait(ctx context.Context, lastErr error, attempt int) error {
	d := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	var rs *retryableStatus
	if errors.As(lastErr, &rs) && rs.after > 0 {
		d = min(rs.after, maxRetryAfter)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting to retry: %w", ctx.Err())
	}
}

// retryAfter interpreta Retry-After en segundos o como fecha HTTP.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
