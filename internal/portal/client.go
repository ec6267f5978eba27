package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/famline/famline/internal/metrics"
	"github.com/famline/famline/internal/session"
	"github.com/famline/famline/internal/usage"
)

// tariffInfoPath is the per-line usage endpoint; the line ID is appended.
const tariffInfoPath = "/api/tariff-info/"

// DefaultMaxParallel bounds concurrent per-line usage fetches.
const DefaultMaxParallel = 3

// Config holds fetcher behavior settings.
type Config struct {
	// MaxParallel bounds concurrent per-line fetches. Zero means
	// DefaultMaxParallel; 1 forces strictly sequential fetching.
	MaxParallel int
	// CacheTTL enables a per-line payload cache when positive. Used by watch
	// mode so short poll intervals do not hammer the portal.
	CacheTTL time.Duration
	// CacheSize caps the payload cache; zero means one entry per typical plan.
	CacheSize int
}

// Client retrieves account data through an authenticated session. It owns the
// run's one-re-authentication budget: the first expired request triggers a
// single re-login, a second expiry surfaces FetchError{FetchSessionLost}.
type Client struct {
	sess   *session.Manager
	cfg    Config
	logger zerolog.Logger
	cache  *expirable.LRU[string, []byte]

	mu       sync.Mutex
	reauthed bool
}

// NewClient creates an account fetcher on top of an authenticated session.
func NewClient(sess *session.Manager, cfg Config, logger zerolog.Logger) *Client {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}

	c := &Client{
		sess:   sess,
		cfg:    cfg,
		logger: logger.With().Str("component", "portal").Logger(),
	}
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 16
		}
		c.cache = expirable.NewLRU[string, []byte](size, nil, cfg.CacheTTL)
	}
	return c
}

// ListLines enumerates the family plan's lines from the dashboard, in
// document order.
func (c *Client) ListLines(ctx context.Context) ([]usage.Line, error) {
	resp, err := c.do(ctx, http.MethodGet, "/")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:     FetchUnparseable,
			Endpoint: "/",
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	lines, err := parseLines(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &FetchError{Kind: FetchUnparseable, Endpoint: "/", Err: err}
	}
	if len(lines) == 0 {
		return nil, &FetchError{Kind: FetchEmptyPlan, Endpoint: "/"}
	}

	c.logger.Info().Int("lines", len(lines)).Msg("Enumerated family lines")
	return lines, nil
}

// FetchUsage retrieves one line's raw tariff payload and decodes it.
// The raw body is returned alongside the decoded payload for diagnostics.
func (c *Client) FetchUsage(ctx context.Context, line usage.Line) (usage.RawTariff, []byte, error) {
	endpoint := tariffInfoPath + line.ID

	var body []byte
	fresh := false
	if c.cache != nil {
		if hit, ok := c.cache.Get(line.ID); ok {
			c.logger.Debug().Str("number", line.Number).Msg("Tariff payload served from cache")
			body = hit
		}
	}

	if body == nil {
		resp, err := c.do(ctx, http.MethodGet, endpoint)
		if err != nil {
			return usage.RawTariff{}, nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return usage.RawTariff{}, nil, &FetchError{
				Kind:     FetchUnparseable,
				Endpoint: endpoint,
				Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
			}
		}
		body = resp.Body
		fresh = true
	}

	var raw usage.RawTariff
	if err := json.Unmarshal(body, &raw); err != nil {
		return usage.RawTariff{}, body, &FetchError{Kind: FetchUnparseable, Endpoint: endpoint, Err: err}
	}

	// Cache only freshly fetched bodies: Add resets the entry's TTL, so
	// re-adding a cache hit would keep the entry alive until eviction and
	// the portal would never be asked again.
	if fresh && c.cache != nil {
		c.cache.Add(line.ID, body)
	}
	return raw, body, nil
}

// FetchAll retrieves and normalizes usage for every line with bounded
// parallelism. Per-line failures become unavailable markers in the result,
// preserving order and count; only a lost session or cancellation aborts.
func (c *Client) FetchAll(ctx context.Context, lines []usage.Line) ([]usage.LineResult, error) {
	results := make([]usage.LineResult, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for i, line := range lines {
		g.Go(func() error {
			res := usage.LineResult{Line: line}
			raw, body, err := c.FetchUsage(gctx, line)
			res.Raw = body

			switch {
			case err == nil:
				record, nerr := usage.Normalize(raw)
				if nerr != nil {
					c.logger.Warn().Err(nerr).Str("number", line.Number).Msg("Tariff payload rejected")
					res.Err = nerr
				} else {
					res.Record = record
				}
			case isSessionLost(err), gctx.Err() != nil:
				return err
			default:
				c.logger.Warn().Err(err).Str("number", line.Number).Msg("Usage fetch failed, marking line unavailable")
				res.Err = err
			}

			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// do issues an authorized request and applies the expiry policy: on the first
// SessionError{Expired} it re-authenticates once and retries the same call
// exactly once. Anything beyond that budget is a lost session.
func (c *Client) do(ctx context.Context, method, path string) (*session.Response, error) {
	resp, err := c.sess.Do(ctx, method, path, nil)
	if err == nil {
		return resp, nil
	}
	if !isExpired(err) {
		return nil, err
	}

	if rerr := c.reauthenticate(ctx); rerr != nil {
		return nil, &FetchError{Kind: FetchSessionLost, Endpoint: path, Err: rerr}
	}

	resp, err = c.sess.Do(ctx, method, path, nil)
	if err == nil {
		return resp, nil
	}
	if isExpired(err) {
		return nil, &FetchError{Kind: FetchSessionLost, Endpoint: path, Err: err}
	}
	return nil, err
}

// ResetRetryBudget restores the one-re-authentication budget. Called at the
// start of each run; a Runner reused across watch polls keeps its Client.
func (c *Client) ResetRetryBudget() {
	c.mu.Lock()
	c.reauthed = false
	c.mu.Unlock()
}

// reauthenticate serializes recovery from an expired session. The first
// caller spends the run's single re-authentication; concurrent callers that
// arrive while it runs observe the restored session and proceed.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.State() == session.StateActive {
		return nil
	}
	if c.reauthed {
		return fmt.Errorf("re-authentication budget exhausted")
	}
	c.reauthed = true

	c.logger.Info().Msg("Session expired, re-authenticating")
	metrics.Reauthentications.Inc()
	if err := c.sess.Authenticate(ctx); err != nil {
		return fmt.Errorf("re-authentication failed: %w", err)
	}
	return nil
}

func isExpired(err error) bool {
	var serr *session.Error
	return errors.As(err, &serr) && serr.Kind == session.ErrExpired
}

func isSessionLost(err error) bool {
	var ferr *FetchError
	return errors.As(err, &ferr) && ferr.Kind == FetchSessionLost
}
