package commands

import (
	"context"
	"fmt"
	"io"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	contextutils "studyprogress/internal/utils"
	"studyprogress/internal/worker"

	"github.com/spf13/cobra"
)

// RecentRecalibrator recalibrates the sets reviewed since its last pass
type RecentRecalibrator interface {
	RecalibrateReviewedSets(ctx context.Context) (*worker.RecalibrationSummary, error)
}

// DifficultyCommands returns the difficulty recalibration commands
func DifficultyCommands(difficultyService services.DifficultyServiceInterface, recent RecentRecalibrator, logger *observability.Logger) *cobra.Command {
	difficultyCmd := &cobra.Command{
		Use:   "difficulty",
		Short: "Difficulty recalibration commands",
	}

	difficultyCmd.AddCommand(recalibrateCmd(difficultyService, recent, logger))

	return difficultyCmd
}

func recalibrateCmd(difficultyService services.DifficultyServiceInterface, recent RecentRecalibrator, logger *observability.Logger) *cobra.Command {
	var (
		setID     int
		rawItems  string
		useRecent bool
	)

	cmd := &cobra.Command{
		Use:   "recalibrate",
		Short: "Recalibrate item difficulty from recent reviews",
		Long: `Recalibrate item difficulty from recent reviews.

Exactly one of --set, --items or --recent selects the items:
  --set     every item of one item set
  --items   a comma separated list of item ids
  --recent  every set reviewed within the configured lookback`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			selected := 0
			for _, on := range []bool{setID > 0, rawItems != "", useRecent} {
				if on {
					selected++
				}
			}
			if selected != 1 {
				return contextutils.InvalidInputf("exactly one of --set, --items or --recent is required")
			}

			out := cmd.OutOrStdout()
			if useRecent {
				summary, err := recent.RecalibrateReviewedSets(ctx)
				if err != nil {
					return contextutils.WrapError(err, "recalibration failed")
				}
				fmt.Fprintf(out, "sets=%d evaluated=%d changed=%d failed=%d set_errors=%d\n",
					summary.Sets, summary.Evaluated, summary.Changed, summary.Failed, summary.SetErrors)
				return nil
			}

			var (
				report *models.RecalibrationReport
				err    error
			)
			if setID > 0 {
				report, err = difficultyService.AdjustItemSetDifficulty(ctx, setID)
			} else {
				var ids []int
				ids, err = parseIDs(rawItems)
				if err != nil {
					return err
				}
				report, err = difficultyService.AdjustItemsDifficulty(ctx, ids)
			}
			if err != nil {
				logger.Error(ctx, "Recalibration failed", err, map[string]interface{}{"item_set_id": setID})
				return contextutils.WrapError(err, "recalibration failed")
			}

			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().IntVar(&setID, "set", 0, "Item set id")
	cmd.Flags().StringVar(&rawItems, "items", "", "Comma separated item ids")
	cmd.Flags().BoolVar(&useRecent, "recent", false, "Recalibrate recently reviewed sets")

	return cmd
}

func printReport(out io.Writer, report *models.RecalibrationReport) {
	fmt.Fprintf(out, "evaluated=%d skipped=%d changed=%d failed=%d\n",
		report.Evaluated, report.Skipped, len(report.Changes), len(report.Failures))
	for _, c := range report.Changes {
		fmt.Fprintf(out, "  item %-8d %.2f -> %.2f\n", c.ItemID, c.From, c.To)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  item %-8d error: %s\n", f.ItemID, f.Error)
	}
}
