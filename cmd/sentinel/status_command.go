package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-sentinel/internal/httpc"
	"github.com/teslashibe/go-sentinel/pkg/web"
)

const statusTimeout = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running sentinel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimRight(strings.TrimSpace(baseURL), "/")
			if target == "" {
				target = dashboardURL(cfg.Server.Addr)
			}

			reqCtx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			var status web.StatusResponse
			if err := httpc.GetJSON(reqCtx, target+"/api/status", &status); err != nil {
				return fmt.Errorf("query sentinel at %s: %w", target, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				statusRows(status),
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Dashboard base URL (default derived from server.addr)")
	return cmd
}

// dashboardURL turns a listen address into a loopback URL.
func dashboardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func statusRows(s web.StatusResponse) [][]string {
	last := s.LastEpisode
	if last == "" {
		last = "-"
	}
	rows := [][]string{
		{"Motion", yesNo(s.MotionDetected)},
		{"Alert", s.AlertStatus},
		{"Episodes", strconv.FormatUint(s.Episodes, 10)},
		{"Last episode", last},
		{"Live viewers", strconv.Itoa(s.CameraClients)},
		{"Uptime", s.Uptime},
	}
	if s.Engine != nil {
		rows = append(rows,
			[]string{"Frames processed", strconv.FormatUint(s.Engine.FramesProcessed, 10)},
			[]string{"Cycles skipped", strconv.FormatUint(s.Engine.CyclesSkipped, 10)},
			[]string{"Alerts played", strconv.FormatUint(s.Engine.AlertsStarted, 10)},
			[]string{"Alerts shared", strconv.FormatUint(s.Engine.AlertsShared, 10)},
		)
	}
	if h := s.Health; h != nil {
		rows = append(rows,
			[]string{"Camera reads", fmt.Sprintf("%d (%d failed, %d reopens)", h.CaptureReads, h.CaptureDropped, h.CaptureReopens)},
			[]string{"Alert failures", strconv.FormatUint(h.AlertFailures, 10)},
			[]string{"Records written", fmt.Sprintf("%d (%d failed, %d dropped)", h.RecordsWritten, h.RecordsFailed, h.RecordsDropped)},
		)
	}
	if s.SlowClients > 0 {
		rows = append(rows, []string{"Slow viewers dropped", strconv.FormatUint(s.SlowClients, 10)})
	}
	return rows
}
