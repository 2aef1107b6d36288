// Package fetch implements the remote lookup client: one request per
// block number through a selected credential, with transparent
// transport decompression and response classification into a tagged
// Outcome at this single boundary.
package fetch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bitmapland/indexer/internal/core/domain"
	"github.com/bitmapland/indexer/internal/infra/credential"
)

// Config holds client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	QuotaCooldown time.Duration
}

// Client issues block lookups against the inscription API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a lookup client.
func NewClient(cfg Config, log *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

type lookupResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		InscriptionID string `json:"inscription_id"`
		Sat           int64  `json:"sat"`
	} `json:"data"`
}

// Fetch looks up the inscription for one block number using the given
// credential slot. It enforces the slot's minimum interval before
// issuing the call. The caller records usage on the rotator afterwards.
func (c *Client) Fetch(ctx context.Context, blockNumber uint64, slot *credential.Slot) Outcome {
	slot.Pace()

	url := fmt.Sprintf("%s/v1/bitmap/block/%d", c.cfg.BaseURL, blockNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("x-api-key", slot.Key)
	req.Header.Set("x-client-id", slot.ClientID)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retryable(fmt.Errorf("lookup block %d: %w", blockNumber, err))
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return retryable(fmt.Errorf("read response: %w", err))
	}

	return c.classify(resp.StatusCode, body)
}

// decodeBody applies transport decompression transparently.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

// classify maps status code + payload into the tagged Outcome. This is
// the only place provider codes are interpreted.
func (c *Client) classify(status int, body []byte) Outcome {
	switch status {
	case http.StatusTooManyRequests:
		return c.quotaHit("http 429")
	case http.StatusUnauthorized, http.StatusForbidden:
		return Outcome{Kind: KindFatal, Err: fmt.Errorf("credential rejected (http %d)", status)}
	}
	if status >= 500 {
		return retryable(fmt.Errorf("http %d: %s", status, truncate(body)))
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return retryable(fmt.Errorf("malformed payload: %w", err))
	}

	switch payload.Code {
	case codeOK:
		if len(payload.Data) == 0 {
			return retryable(fmt.Errorf("ok response with empty data"))
		}
		sat := payload.Data[0].Sat
		if sat == 0 {
			sat = domain.SatUnknown
		}
		return Outcome{
			Kind:          KindFound,
			InscriptionID: payload.Data[0].InscriptionID,
			Sat:           sat,
		}
	case codeNoResults:
		return Outcome{Kind: KindNotFound, Sat: domain.SatUnknown}
	case codeInvalidKey:
		return Outcome{Kind: KindFatal, Err: fmt.Errorf("invalid credential: %s", payload.Message)}
	case codeQuotaExceeded:
		return c.quotaHit(payload.Message)
	}

	// Some deployments signal throttling only through the message text.
	lower := strings.ToLower(payload.Message)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return c.quotaHit(payload.Message)
		}
	}

	return retryable(fmt.Errorf("unexpected provider code %d: %s", payload.Code, payload.Message))
}

func (c *Client) quotaHit(reason string) Outcome {
	return Outcome{
		Kind:     KindQuotaHit,
		Sat:      domain.SatUnknown,
		Err:      fmt.Errorf("rate limited: %s", reason),
		Cooldown: c.cfg.QuotaCooldown,
	}
}

func retryable(err error) Outcome {
	return Outcome{Kind: KindRetryable, Sat: domain.SatUnknown, Err: err}
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
