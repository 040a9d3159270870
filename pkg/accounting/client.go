// Package accounting implements the gateway's best-effort byte-counter
// adapter, per spec §1 and §B.3: archive/retrieve/destroy each report a
// byte delta to an external accounting service over a JWT-bearer HTTP
// call. A failure here is logged and dropped — it never fails the
// client's HTTP request, matching original_source's accounting_client
// being fire-and-forget.
package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bowlofstew/nimbus.io/internal/logger"
	"github.com/bowlofstew/nimbus.io/pkg/config"
)

// Client is an HTTP client for the accounting service's added/
// retrieved/removed byte-counter endpoints.
type Client struct {
	httpClient *http.Client
	cfg        config.AccountingConfig
}

// New builds a Client from cfg. cfg.RequestTimeout must already be
// resolved by pkg/config's defaults.
func New(cfg config.AccountingConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
	}
}

type usageReport struct {
	CollectionID int64  `json:"collection_id"`
	Timestamp    int64  `json:"timestamp"`
	Bytes        int64  `json:"bytes"`
	Action       string `json:"action"`
}

// Added reports a successful archive's byte count.
func (c *Client) Added(ctx context.Context, collectionID int64, timestamp int64, bytes int64) {
	c.report(ctx, "added", usageReport{CollectionID: collectionID, Timestamp: timestamp, Bytes: bytes, Action: "added"})
}

// Retrieved reports a successful retrieve's byte count.
func (c *Client) Retrieved(ctx context.Context, collectionID int64, timestamp int64, bytes int64) {
	c.report(ctx, "retrieved", usageReport{CollectionID: collectionID, Timestamp: timestamp, Bytes: bytes, Action: "retrieved"})
}

// Removed reports a successful destroy's reclaimed byte count.
func (c *Client) Removed(ctx context.Context, collectionID int64, timestamp int64, bytes int64) {
	c.report(ctx, "removed", usageReport{CollectionID: collectionID, Timestamp: timestamp, Bytes: bytes, Action: "removed"})
}

// report posts one usage report with a bounded exponential-backoff
// retry. Exhausting the retry budget is logged, not returned — callers
// never block request handling on accounting being reachable.
func (c *Client) report(ctx context.Context, action string, body usageReport) {
	if c.cfg.Endpoint == "" {
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("accounting: failed to marshal report", "action", action, "error", err)
		return
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	policy = backoff.WithContext(policy, ctx)

	op := func() error {
		token, err := c.signToken()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("accounting: sign token: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/"+action, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("accounting: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("accounting: server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("accounting: client error %d", resp.StatusCode))
		}
		return nil
	}

	attempt := 0
	notify := func(err error, _ time.Duration) {
		attempt++
		logger.Debug("accounting: report attempt failed, retrying", "action", action, logger.Attempt(attempt), logger.Err(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		logger.Warn("accounting: report failed, dropping", "action", action, "collection_id", body.CollectionID, "error", err)
	}
}

// signToken issues a short-lived HS256 bearer token identifying this
// gateway to the accounting service, per spec §B.3 ("authenticated with
// a JWT bearer token").
func (c *Client) signToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "nimbusio-web-server",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.cfg.JWTSigningKey))
}
