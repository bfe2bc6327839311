package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trust/internal/domain/types"
	"github.com/okian/trust/pkg/logger"
)

// Run submits the generated plan and verifies every touched user. It
// returns ErrViolations when any invariant is broken.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := logger.Named("loadtest")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg)

	log.Info(ctx, "starting trust load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("eventsPerUser", cfg.EventsPerUser),
		logger.Int("workers", cfg.Workers),
		logger.Float64("duplicateRate", cfg.DuplicateRate))

	if err := checkServiceHealth(ctx, c); err != nil {
		return nil, err
	}

	var catalog []types.CatalogEntryView
	if err := c.getJSON(ctx, "/trust/catalog", &catalog); err != nil {
		return nil, err
	}
	var levels []types.LevelView
	if err := c.getJSON(ctx, "/trust/levels", &levels); err != nil {
		return nil, err
	}

	plan, err := generatePlan(cfg, catalog)
	if err != nil {
		return nil, err
	}
	stats.EventsPlanned = len(plan.Submissions)

	acked, err := submitPlan(ctx, cfg, c, plan, stats)
	if err != nil {
		return stats, err
	}

	if err := verifyPlan(ctx, cfg, c, plan, acked, levels, stats); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	if len(stats.Violations) > 0 {
		for _, v := range stats.Violations {
			log.Error(ctx, "invariant violated",
				logger.String("user_id", v.UserID),
				logger.String("check", v.Check),
				logger.String("detail", v.Detail))
		}
		return stats, fmt.Errorf("%w: %d violations", ErrViolations, len(stats.Violations))
	}
	log.Info(ctx, "load test passed")
	return stats, nil
}

func checkServiceHealth(ctx context.Context, c *client) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// submitPlan posts every submission, plus repeats, with at most cfg.Workers
// requests in flight. It returns the acknowledged event ids.
func submitPlan(ctx context.Context, cfg *Config, c *client, plan Plan, stats *Stats) (map[string]bool, error) {
	var (
		mu        sync.Mutex
		acked     = make(map[string]bool, len(plan.Submissions))
		submitted atomic.Int64
		created   atomic.Int64
		duplicate atomic.Int64
		retried   atomic.Int64
		failed    atomic.Int64
	)
	log := logger.Named("loadtest")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	send := func(sub Submission) {
		g.Go(func() error {
			res, err := submitWithRetry(gctx, cfg, c, sub, &retried)
			submitted.Add(1)
			switch res {
			case resultCreated:
				created.Add(1)
			case resultDuplicate:
				duplicate.Add(1)
			default:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "submission failed", logger.String("event_id", sub.EventID), logger.Error(err))
				}
				return gctx.Err()
			}
			mu.Lock()
			acked[sub.EventID] = true
			mu.Unlock()
			return nil
		})
	}
	for _, sub := range plan.Submissions {
		send(sub)
		if plan.Repeats[sub.EventID] {
			send(sub)
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("submission aborted: %w", err)
	}

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsCreated = int(created.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsRetried = int(retried.Load())
	stats.EventsFailed = int(failed.Load())
	return acked, nil
}

func submitWithRetry(ctx context.Context, cfg *Config, c *client, sub Submission, retried *atomic.Int64) (submitResult, error) {
	for attempt := 0; ; attempt++ {
		res, wait, err := c.submit(ctx, sub)
		if res != resultBusy {
			return res, err
		}
		if attempt >= cfg.MaxRetries {
			return resultFailed, fmt.Errorf("event %s still busy after %d retries", sub.EventID, attempt)
		}
		retried.Add(1)
		select {
		case <-ctx.Done():
			return resultFailed, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// verifyPlan reads back every user's ledger and profile and checks them.
func verifyPlan(ctx context.Context, cfg *Config, c *client, plan Plan, acked map[string]bool, levels []types.LevelView, stats *Stats) error {
	expectations := make(map[string]*expectation)
	for _, sub := range plan.Submissions {
		exp, ok := expectations[sub.UserID]
		if !ok {
			exp = &expectation{Acknowledged: make(map[string]bool), Planned: make(map[string]bool)}
			expectations[sub.UserID] = exp
		}
		exp.Planned[sub.EventID] = true
		if acked[sub.EventID] {
			exp.Acknowledged[sub.EventID] = true
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for userID, exp := range expectations {
		g.Go(func() error {
			l := userLedger{UserID: userID}
			if err := c.getJSON(gctx, historyPath(userID, cfg.HistoryLimit), &l.History); err != nil {
				return err
			}
			if err := c.getJSON(gctx, scorePath(userID), &l.Score); err != nil {
				return err
			}
			violations := verifyUser(l, *exp, levels)
			mu.Lock()
			stats.UsersVerified++
			stats.Violations = append(stats.Violations, violations...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("verification aborted: %w", err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("eventsPlanned", stats.EventsPlanned),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsCreated", stats.EventsCreated),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsRetried", stats.EventsRetried),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("usersVerified", stats.UsersVerified),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
