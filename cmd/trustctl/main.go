// trustctl inspects and repairs trust ledgers directly against the configured store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/repository"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/config"
	"github.com/okian/trust/pkg/logger"
)

// operatorRoles are granted to the CLI in addition to the configured writer
// and reader roles. The CLI policy also accepts them as history readers.
var operatorRoles = []string{"admin", "service"}

type globalFlags struct {
	driver   string
	dsn      string
	operator string
	logLevel string
	roles    []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "trustctl",
		Short: "Inspect and repair trust score ledgers",
		Long: `trustctl works directly against the ledger configured by TRUST_CONFIG and
TRUST_* variables. It takes the same per-user locks as the service only when
the lock backend is shared (redis); with the in-process backend, run it while
the service is stopped.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "override store_driver (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "override store_dsn")
	rootCmd.PersistentFlags().StringVar(&flags.operator, "operator", "trustctl", "principal recorded as the caller")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(recordCmd(flags))
	rootCmd.AddCommand(historyCmd(flags))
	rootCmd.AddCommand(scoreCmd(flags))
	rootCmd.AddCommand(verifyCmd(flags))
	rootCmd.AddCommand(rebuildCmd(flags))
	rootCmd.AddCommand(levelsCmd(flags))
	rootCmd.AddCommand(catalogCmd(flags))
	rootCmd.AddCommand(migrateCmd(flags))
	return rootCmd
}

func (f *globalFlags) principal() auth.Principal {
	return auth.Principal{UserID: f.operator, Roles: f.roles}
}

func (f *globalFlags) load(ctx context.Context) (*config.Config, error) {
	if err := logger.Init(logger.WithLevel(f.logLevel), logger.WithOutput(os.Stderr)); err != nil {
		return nil, err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if f.driver != "" {
		cfg.StoreDriver = f.driver
	}
	if f.dsn != "" {
		cfg.StoreDSN = f.dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.roles = slices.Concat(operatorRoles, cfg.WriterRoles, cfg.ReaderRoles)
	return cfg, nil
}

// withEngine builds an engine from configuration for the duration of run.
func withEngine(f *globalFlags, run func(cmd *cobra.Command, args []string, e *service.Engine) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		cfg, err := f.load(ctx)
		if err != nil {
			return err
		}
		cat, err := cfg.BuildCatalog()
		if err != nil {
			return err
		}
		levels, err := cfg.BuildLevels()
		if err != nil {
			return err
		}
		calc, err := cfg.BuildCalculator(cat)
		if err != nil {
			return err
		}
		store, err := repository.Open(ctx, cfg.StoreConfig())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		guard, release, err := cfg.BuildGuard(ctx)
		if err != nil {
			return errors.Join(err, store.Close())
		}
		engine, err := service.New(store,
			service.WithCatalog(cat),
			service.WithCalculator(calc),
			service.WithLevels(levels),
			service.WithGuard(guard),
			service.WithPolicy(cfg.BuildPolicy(auth.WithReaderRoles(slices.Concat(operatorRoles, cfg.ReaderRoles)...))),
			service.WithHistoryLimits(cfg.DefaultHistoryLimit, cfg.MaxHistoryLimit),
		)
		if err != nil {
			return errors.Join(err, release(), store.Close())
		}
		defer func() {
			err = errors.Join(err, engine.Close(), release())
		}()
		return run(cmd, args, engine)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
