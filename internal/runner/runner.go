package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/famline/famline/internal/config"
	"github.com/famline/famline/internal/portal"
	"github.com/famline/famline/internal/session"
	"github.com/famline/famline/internal/usage"
)

// Result is the outcome of one retrieval run.
type Result struct {
	Report  usage.FamilyReport
	Results []usage.LineResult // per-line detail, in ListLines order
}

// Runner wires the session, the account fetcher and the aggregator into the
// credentials -> session -> payloads -> report pipeline. One Runner serves
// many runs; watch mode reuses it so the session and payload cache survive
// between polls.
type Runner struct {
	sess   *session.Manager
	client *portal.Client
	logger zerolog.Logger
}

// Options tune Runner behavior beyond the static configuration.
type Options struct {
	// CacheTTL enables the per-line payload cache when positive.
	// Watch mode sets it; one-shot runs leave it zero.
	CacheTTL time.Duration
}

// New builds a Runner from configuration.
func New(cfg *config.Config, opts Options, logger zerolog.Logger) (*Runner, error) {
	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return nil, fmt.Errorf("portal credentials are required (set credentials in the config file or FAMLINE_CREDENTIALS_USERNAME / FAMLINE_CREDENTIALS_PASSWORD)")
	}

	sess, err := session.NewManager(
		session.Config{
			BaseURL:   cfg.Portal.BaseURL,
			Timeout:   cfg.PortalTimeout(),
			UserAgent: cfg.Portal.UserAgent,
		},
		session.Credentials{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	client := portal.NewClient(sess, portal.Config{
		MaxParallel: cfg.Portal.MaxParallel,
		CacheTTL:    opts.CacheTTL,
	}, logger)

	return &Runner{
		sess:   sess,
		client: client,
		logger: logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Run performs one full retrieval: authenticate when needed, enumerate lines,
// fetch each line's usage, aggregate. Per-line failures surface as
// unavailable markers inside the report; authentication failures, an empty
// plan, an unparseable dashboard or a lost session abort the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if r.sess.State() != session.StateActive {
		if err := r.sess.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	// Each run gets a fresh one-re-authentication budget.
	r.client.ResetRetryBudget()

	lines, err := r.client.ListLines(ctx)
	if err != nil {
		return nil, err
	}

	results, err := r.client.FetchAll(ctx, lines)
	if err != nil {
		return nil, err
	}

	report := usage.Aggregate(results)

	r.logger.Info().
		Int("lines", report.Totals.Lines).
		Int("unavailable", report.Totals.Unavailable).
		Dur("elapsed", time.Since(start)).
		Msg("Run complete")

	return &Result{Report: report, Results: results}, nil
}
