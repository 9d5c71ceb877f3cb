package commands

import (
	"context"
	"fmt"

	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	"github.com/spf13/cobra"
)

// StaleSessionSweeper closes sessions left open past the stale threshold
type StaleSessionSweeper interface {
	SweepStaleSessions(ctx context.Context) (int64, error)
}

// SessionCommands returns the study session maintenance commands
func SessionCommands(sweeper StaleSessionSweeper, logger *observability.Logger) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Study session maintenance commands",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Close stored sessions that were never ended",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			closed, err := sweeper.SweepStaleSessions(ctx)
			if err != nil {
				logger.Error(ctx, "Session sweep failed", err, nil)
				return contextutils.WrapError(err, "session sweep failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %d stale sessions\n", closed)
			return nil
		},
	})

	return sessionCmd
}
