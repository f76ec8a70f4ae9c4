package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"memorial/internal/config"
	"memorial/internal/input"
	"memorial/internal/util"
)

const defaultSourceName = "remote.csv"

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

// Download is one fetch of the published roster.
type Download struct {
	Name        string
	Body        []byte
	ETag        string
	NotModified bool
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RemoteTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RemoteRateLimitRPS),
	}
}

// Fetch downloads REMOTE_CSV_URL. A non-empty etag is sent as If-None-Match and
// a 304 reply yields NotModified.
func (c *Client) Fetch(ctx context.Context, etag string) (Download, error) {
	if err := c.cfg.Require("REMOTE_CSV_URL", c.cfg.RemoteCSVURL); err != nil {
		return Download{}, err
	}
	u, err := url.Parse(c.cfg.RemoteCSVURL)
	if err != nil {
		return Download{}, err
	}
	name := path.Base(u.Path)
	if _, err := input.KindOf(name); err != nil || name == "/" || name == "." {
		name = defaultSourceName
	}

	attempts := c.cfg.RemoteMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return Download{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return Download{}, err
		}
		if strings.TrimSpace(c.cfg.RemoteToken) != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.RemoteToken)
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Download{}, ctx.Err()
			}
			if err := c.backoff(ctx, attempt, attempts); err != nil {
				return Download{}, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if err := c.backoff(ctx, attempt, attempts); err != nil {
				return Download{}, err
			}
			continue
		}

		if resp.StatusCode == http.StatusNotModified {
			return Download{Name: name, ETag: etag, NotModified: true}, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < attempts {
				lastErr = fmt.Errorf("remote status %d", resp.StatusCode)
				if err := c.backoff(ctx, attempt, attempts); err != nil {
					return Download{}, err
				}
				continue
			}
			return Download{}, fmt.Errorf("remote roster error: status=%d body=%s", resp.StatusCode, util.Snippet(string(body), 200))
		}

		return Download{Name: name, Body: body, ETag: resp.Header.Get("ETag")}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("remote request failed")
	}
	return Download{}, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt, attempts int) error {
	if attempt >= attempts {
		return nil
	}
	d := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	return sleepCtx(ctx, d)
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
