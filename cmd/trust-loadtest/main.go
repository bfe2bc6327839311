package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/loadtest"
	"github.com/okian/trust/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers         = 50
	defaultEventsPerUser = 40
	defaultDuplicateRate = 0.05
	defaultWorkers       = 4 // multiplier for runtime.NumCPU()
	defaultTimeout       = 10 * time.Second
	defaultTestTimeout   = 10 * time.Minute
	defaultMaxRetries    = 5
	defaultHistoryLimit  = 200
	tokenTTL             = time.Hour
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users         = flag.Int("users", defaultUsers, "Number of distinct users")
		eventsPerUser = flag.Int("events", defaultEventsPerUser, "Events submitted per user")
		duplicateRate = flag.Float64("duplicates", defaultDuplicateRate, "Fraction of events resubmitted with the same event id")
		workers       = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent requests")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		maxRetries    = flag.Int("retries", defaultMaxRetries, "Resubmissions allowed after a busy response")
		historyLimit  = flag.Int("history-limit", defaultHistoryLimit, "Page size used to read back ledgers")
		seed          = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		operator      = flag.String("operator", "trust-loadtest", "Caller identity")
		roles         = flag.String("roles", "service,admin", "Caller roles; the server must list one of them in reader_roles")
		jwtSecret     = flag.String("jwt-secret", "", "Sign a bearer token with this secret instead of sending gateway headers")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
		jsonLogs      = flag.Bool("json", false, "Log as JSON")
	)
	flag.Parse()

	format := "text"
	if *jsonLogs {
		format = "json"
	}
	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithLevel(level)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &loadtest.Config{
		BaseURL:       *baseURL,
		Users:         *users,
		EventsPerUser: *eventsPerUser,
		DuplicateRate: *duplicateRate,
		Workers:       *workers,
		Timeout:       *timeout,
		MaxRetries:    *maxRetries,
		HistoryLimit:  *historyLimit,
		Seed:          *seed,
		Operator:      *operator,
		Roles:         strings.Split(*roles, ","),
		Verbose:       *verbose,
	}
	if *jwtSecret != "" {
		token, err := auth.IssueToken(*jwtSecret, auth.Principal{UserID: cfg.Operator, Roles: cfg.Roles}, tokenTTL)
		if err != nil {
			os.Stderr.WriteString("Failed to issue token: " + err.Error() + "\n")
			os.Exit(1)
		}
		cfg.Token = token
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	stats, err := loadtest.Run(ctx, cfg)
	cancel()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load test failed (seed %d): %v\n", *seed, err)
		os.Exit(1)
	}
	fmt.Printf("ok: %d users, %d events created, %d duplicates, %d failed in %s\n",
		stats.UsersVerified, stats.EventsCreated, stats.EventsDuplicate, stats.EventsFailed, stats.Duration.Round(time.Millisecond))
}
