package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-sentinel/internal/config"
	"github.com/teslashibe/go-sentinel/pkg/recorder"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded motion episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			rows, err := loadEventRows(cmd.Context(), cfg, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No motion episodes recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Started", "Snapshot"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of episodes to show")
	return cmd
}

// loadEventRows reads from the SQLite index when enabled, otherwise from the
// CSV log, which carries no snapshot names.
func loadEventRows(ctx context.Context, cfg *config.Config, limit int) ([][]string, error) {
	if cfg.Storage.Database {
		store, err := recorder.OpenStore(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("open episode store: %w", err)
		}
		defer store.Close()

		episodes, err := store.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(episodes))
		for i, ep := range episodes {
			snapshot := ep.Snapshot
			if snapshot == "" {
				snapshot = "-"
			}
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				ep.StartedAt.Local().Format(recorder.TimestampLayout),
				snapshot,
			})
		}
		return rows, nil
	}

	events, err := recorder.OpenCSVLog(cfg.EventLogPath())
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	recent, err := events.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		rows = append(rows, []string{
			strconv.Itoa(len(rows) + 1),
			recent[i].Format(recorder.TimestampLayout),
			"-",
		})
	}
	return rows, nil
}
