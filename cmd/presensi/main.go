// Package main provides the presensi command line tool. It evaluates meeting
// status and attendance history exported from the upstream API without a
// running server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"presensi/internal/meeting"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	timezone string
	logLevel string
}

func (g *globalFlags) location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", g.timezone, err)
	}
	// Timestamp dates in the input files belong to the same zone.
	meeting.SetTimestampLocation(loc)
	return loc, nil
}

func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(g.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "presensi",
		Short:         "Meeting status and attendance history tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.timezone, "tz", "Asia/Jakarta", "Timezone meeting times are evaluated in")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(statusCmd(g), historyCmd(g), watchCmd(g))
	return cmd
}
