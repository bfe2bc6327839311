package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/trust/internal/adapters/repository"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/domain/types"
)

// ErrInconsistent is returned by verify when a profile disagrees with its ledger.
var ErrInconsistent = errors.New("profile is inconsistent with its ledger")

func recordCmd(f *globalFlags) *cobra.Command {
	var userID, eventType, rawContext, eventID string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append one event to a user's ledger",
		Example: `  trustctl record --user u1 --type score_correction \
    --context '{"amount":25,"reason":"dispute reversed"}'`,
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			sub := service.Submission{UserID: userID, EventType: eventType, EventID: eventID}
			if rawContext != "" {
				if !json.Valid([]byte(rawContext)) {
					return fmt.Errorf("--context is not valid JSON")
				}
				sub.Context = json.RawMessage(rawContext)
			}
			out, err := e.RecordEvent(cmd.Context(), f.principal(), sub)
			if err != nil {
				return err
			}
			return printJSON(cmd, types.RecordResult{
				EventID:       out.Event.ID,
				Score:         out.Profile.Score,
				Level:         out.Profile.Level,
				WeightApplied: out.Event.WeightApplied,
				Duplicate:     out.Duplicate,
			})
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&eventType, "type", "", "event type")
	cmd.Flags().StringVar(&rawContext, "context", "", "event context as a JSON object")
	cmd.Flags().StringVar(&eventID, "event-id", "", "idempotency key")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func historyCmd(f *globalFlags) *cobra.Command {
	var userID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's events, newest first",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			seq, err := e.ListEvents(cmd.Context(), f.principal(), userID, limit)
			if err != nil {
				return err
			}
			out := []types.EventRecord{}
			for ev, err := range seq {
				if err != nil {
					return err
				}
				out = append(out, types.EventRecord{
					ID:             ev.ID,
					EventType:      ev.Type,
					WeightApplied:  ev.WeightApplied,
					ResultingScore: ev.ResultingScore,
					CreatedAt:      ev.CreatedAt,
					Context:        ev.Context,
				})
			}
			return printJSON(cmd, out)
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size; 0 selects the default")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func scoreCmd(f *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show a user's cached score and level",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			p, err := e.Score(cmd.Context(), f.principal(), userID)
			if err != nil {
				return err
			}
			view := types.ScoreView{UserID: p.UserID, Score: p.Score, Level: p.Level}
			if p.Exists() {
				view.UpdatedAt = &p.UpdatedAt
			}
			return printJSON(cmd, view)
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func verifyCmd(f *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay a user's ledger and compare it with the stored profile",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			report, err := e.Verify(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Consistent() {
				return fmt.Errorf("%w: %s", ErrInconsistent, userID)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func rebuildCmd(f *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute a user's profile from the ledger",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			p, err := e.Rebuild(cmd.Context(), userID)
			if err != nil {
				return err
			}
			view := types.ScoreView{UserID: p.UserID, Score: p.Score, Level: p.Level}
			if p.Exists() {
				view.UpdatedAt = &p.UpdatedAt
			}
			return printJSON(cmd, view)
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func levelsCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Print the configured tier table",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			tiers := e.Levels()
			out := make([]types.LevelView, 0, len(tiers))
			for _, t := range tiers {
				out = append(out, types.LevelView{Name: t.Name, Min: t.Min, Max: t.Max})
			}
			return printJSON(cmd, out)
		}),
	}
}

func catalogCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the configured event catalog",
		RunE: withEngine(f, func(cmd *cobra.Command, _ []string, e *service.Engine) error {
			entries := e.Catalog()
			out := make([]types.CatalogEntryView, 0, len(entries))
			for _, c := range entries {
				out = append(out, types.CatalogEntryView{
					EventType:   c.Type,
					Weight:      c.Weight,
					ContextKeys: c.ContextKeys,
					Correction:  c.Correction,
				})
			}
			return printJSON(cmd, out)
		}),
	}
}

func migrateCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd.Context())
			if err != nil {
				return err
			}
			sc := cfg.StoreConfig()
			sc.AutoMigrate = true
			store, err := repository.Open(cmd.Context(), sc)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ledger schema ready: %s\n", cfg.StoreDriver)
			return err
		},
	}
}
