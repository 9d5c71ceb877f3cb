package commands

import (
	"context"
	"fmt"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	contextutils "studyprogress/internal/utils"

	"github.com/spf13/cobra"
)

// GoalCommands returns the goal management commands
func GoalCommands(goalService services.GoalServiceInterface, logger *observability.Logger) *cobra.Command {
	goalCmd := &cobra.Command{
		Use:   "goals",
		Short: "Goal management commands",
		Long: `Goal management commands for the study progress engine.

Available commands:
  notifications - Show deadline notifications for a user
  bulk          - Extend, pause, archive or delete many goals at once`,
	}

	goalCmd.AddCommand(notificationsCmd(goalService, logger))
	goalCmd.AddCommand(bulkCmd(goalService, logger))

	return goalCmd
}

func notificationsCmd(goalService services.GoalServiceInterface, logger *observability.Logger) *cobra.Command {
	var userID int

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show deadline notifications for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			if userID <= 0 {
				return contextutils.InvalidInputf("--user must be a positive id")
			}

			notifications, err := goalService.GetNotifications(ctx, userID)
			if err != nil {
				logger.Error(ctx, "Failed to get goal notifications", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to get goal notifications")
			}

			out := cmd.OutOrStdout()
			if len(notifications) == 0 {
				fmt.Fprintln(out, "No notifications")
				return nil
			}

			fmt.Fprintf(out, "%-8s %-22s %-10s %s\n", "Goal", "Classification", "Priority", "Message")
			for _, n := range notifications {
				fmt.Fprintf(out, "%-8d %-22s %-10s %s\n", n.GoalID, n.Classification, n.Priority, n.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&userID, "user", 0, "User id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func bulkCmd(goalService services.GoalServiceInterface, logger *observability.Logger) *cobra.Command {
	var (
		userID int
		action string
		rawIDs string
		days   int
		reason string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Apply one action to many goals",
		Long: `Apply one action to many goals of a user. Each goal is updated on its own;
failures are listed and do not stop the rest.

Actions: extend (needs --days), pause, archive (optional --reason), delete.
Deleting asks for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			if userID <= 0 {
				return contextutils.InvalidInputf("--user must be a positive id")
			}
			bulkAction := models.BulkAction(action)
			if !bulkAction.Valid() {
				return contextutils.InvalidInputf("unknown action %q", action)
			}
			ids, err := parseIDs(rawIDs)
			if err != nil {
				return err
			}

			if bulkAction == models.BulkActionDelete && !yes {
				if !stdinIsTerminal() {
					return contextutils.InvalidInputf("refusing to delete without --yes when stdin is not a terminal")
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %d goals of user %d?", len(ids), userID))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			result, err := goalService.ApplyBulkAction(ctx, userID, ids, bulkAction, models.BulkActionParams{Days: days, Reason: reason})
			if err != nil {
				logger.Error(ctx, "Bulk goal action failed", err, map[string]interface{}{"user_id": userID, "action": action})
				return contextutils.WrapError(err, "bulk goal action failed")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d of %d goals updated\n", result.Action, result.SuccessCount, result.Total)
			for _, f := range result.Failures {
				fmt.Fprintf(out, "  goal %d: %s\n", f.GoalID, f.Error)
			}

			logger.Info(ctx, "Bulk goal action applied", map[string]interface{}{
				"user_id":  userID,
				"action":   action,
				"success":  result.SuccessCount,
				"total":    result.Total,
				"failures": len(result.Failures),
			})
			return nil
		},
	}

	cmd.Flags().IntVar(&userID, "user", 0, "User id")
	cmd.Flags().StringVar(&action, "action", "", "extend, pause, archive or delete")
	cmd.Flags().StringVar(&rawIDs, "ids", "", "Comma separated goal ids")
	cmd.Flags().IntVar(&days, "days", 0, "Days to extend by")
	cmd.Flags().StringVar(&reason, "reason", "", "Archive reason")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the delete confirmation")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("ids")

	return cmd
}
