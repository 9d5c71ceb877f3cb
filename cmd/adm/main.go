// Package main provides the main entry point for the study progress admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"studyprogress/cmd/adm/commands"
	"studyprogress/internal/config"
	"studyprogress/internal/database"
	"studyprogress/internal/di"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"
	"studyprogress/internal/worker"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	if os.Getenv("STUDY_CONFIG_FILE") == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("STUDY_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set STUDY_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The admin tool logs errors only and never exports telemetry
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "studyprogress-adm")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	container := di.NewServiceContainer(cfg, logger)
	if err := container.InitializeStorage(ctx); err != nil {
		logger.Error(ctx, "Failed to connect to database", err, nil)
		os.Exit(1)
	}
	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	rootCmd, err := newRootCommand(container)
	if err != nil {
		logger.Error(ctx, "Failed to build commands", err, nil)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		_ = container.Shutdown(context.Background())
		os.Exit(1)
	}
}

func newRootCommand(container di.ServiceContainerInterface) (*cobra.Command, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	progressStore, err := container.GetProgressStore()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get progress store")
	}
	difficultyService, err := container.GetDifficultyService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get difficulty service")
	}
	goalService, err := container.GetGoalService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get goal service")
	}

	// One-shot worker runs; the scheduler is never started here
	maintenance := worker.NewWorker(progressStore, difficultyService, cfg, contextutils.SystemClock{}, "adm", logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Study Progress Administration Tool",
		Long: `Study Progress Administration Tool

Inspect goals, apply bulk goal actions, recalibrate item difficulty
and close abandoned study sessions.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.GoalCommands(goalService, logger))
	rootCmd.AddCommand(commands.DifficultyCommands(difficultyService, maintenance, logger))
	rootCmd.AddCommand(commands.SessionCommands(maintenance, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(container.GetDatabase(), cfg.Database.URL, database.NewManager(logger), logger))

	return rootCmd, nil
}
