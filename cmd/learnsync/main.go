// Package main provides the learnsync binary: the background sync worker and
// a handful of maintenance commands over the local progress snapshot.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/alem-hub/learnsync/config"
	"github.com/alem-hub/learnsync/pkg/logger"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "learnsync"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	logLevel string
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Offline-first learning progress tracking and sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		workerCmd(flags),
		syncCmd(flags),
		statusCmd(flags),
		recordCmd(flags),
		noteCmd(flags),
		quizCmd(flags),
		resetCmd(flags),
		migrateCmd(flags),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s, %s)\n", appName, Version, BuildTime, runtime.Version())
		},
	}
}

// withApp loads configuration, wires the app and runs fn against it.
func withApp(ctx context.Context, flags *rootFlags, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg, flags.logLevel)

	a, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		log.Error("failed to start", logger.Err(err))
		_ = log.Sync()
		return err
	}
	defer a.close()

	return fn(logger.WithContext(ctx, log), a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
