// Package payment is the HTTP client for the external payment service that
// moves funds and records AI usage purchases on behalf of a group.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"schedbot/pkg/logx"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// CoinVersion selects the token standard on the payment service side.
// Legacy coin types carry a "::" module path; fungible assets do not.
type CoinVersion string

const (
	CoinV1 CoinVersion = "v1"
	CoinV2 CoinVersion = "v2"
)

// VersionFor derives the coin version from a token type string.
func VersionFor(tokenType string) CoinVersion {
	if strings.Contains(tokenType, "::") {
		return CoinV1
	}
	return CoinV2
}

// PayRequest submits a transfer. Amount is in smallest units.
type PayRequest struct {
	Amount   uint64      `json:"amount"`
	Users    []string    `json:"users"`
	CoinType string      `json:"coin_type"`
	Version  CoinVersion `json:"version"`
}

type PayResponse struct {
	Hash string `json:"hash"`
}

// UsageReport records billable AI usage against the group's account.
type UsageReport struct {
	TotalTokens int32  `json:"total_tokens"`
	Model       string `json:"model"`
	GroupID     string `json:"group_id"`
}

// Client wraps the payment service with a timeout and a circuit breaker so a
// dead upstream fails fast instead of tying up scheduler ticks.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "payment-service",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: cb,
		log:     log,
	}
}

// PayUsers submits a transfer and returns the transaction reference.
func (c *Client) PayUsers(ctx context.Context, jwt string, req PayRequest) (*PayResponse, error) {
	var out PayResponse
	if err := c.post(ctx, "/pay-users", jwt, req, &out); err != nil {
		return nil, err
	}
	if out.Hash == "" {
		return nil, fmt.Errorf("payment service returned no transaction hash")
	}
	return &out, nil
}

// ReportUsage records an AI usage purchase. Callers treat failures as
// non-fatal; the broadcast itself already happened.
func (c *Client) ReportUsage(ctx context.Context, jwt string, rep UsageReport) error {
	return c.post(ctx, "/purchase", jwt, rep, nil)
}

func (c *Client) post(ctx context.Context, path, jwt string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+jwt)
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Count upstream failures toward tripping the breaker.
			drainClose(resp)
			return nil, fmt.Errorf("payment service %s: status %d", path, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer drainClose(resp)

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("payment service %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
