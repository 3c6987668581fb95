package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-sentinel/internal/log"
	"github.com/teslashibe/go-sentinel/pkg/debug"
	"github.com/teslashibe/go-sentinel/pkg/sentinel"
)

// shutdownTimeout bounds how long Ctrl+C waits for the cue and pending
// recordings.
const shutdownTimeout = 5 * time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts sentinel.Options
	var debugFlag bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the camera until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if debugFlag {
				cfg.Logging.Level = "debug"
				debug.Enabled = true
			}
			log.Init(cfg.Logging.Level, cfg.Logging.Format)
			opts.Logger = log.Component("sentinel")

			if ctx.configSeen {
				opts.Logger.Info("loaded config", "path", ctx.configPath)
			} else {
				opts.Logger.Info("no config file found, using defaults", "path", ctx.configPath)
			}

			app, err := sentinel.New(cfg, opts)
			if err != nil {
				return err
			}
			if err := app.Init(); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runErr := app.Run(runCtx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				opts.Logger.Warn("shutdown incomplete", "error", err)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&opts.NoAlert, "no-alert", false, "Record episodes without playing the alert")
	cmd.Flags().BoolVar(&opts.Silent, "silent", false, "Use a silent alert cue instead of the sound file")
	cmd.Flags().BoolVar(&opts.DebugFrames, "debug-frames", false, "Log per-frame detection details")
	cmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
