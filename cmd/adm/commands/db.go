package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	"github.com/spf13/cobra"
)

// SchemaResetter drops and re-applies the schema migrations
type SchemaResetter interface {
	ResetSchema(ctx context.Context, databaseURL string) error
}

// DatabaseCommands returns the database management commands
func DatabaseCommands(db *sql.DB, databaseURL string, resetter SchemaResetter, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the study progress engine.

Available commands:
  info   - Show the database the tool is connected to
  reset  - Drop every table and re-run the migrations`,
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the database the tool is connected to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Info(context.Background(), "Admin command diagnostics", map[string]interface{}{
				"config_file":  os.Getenv("STUDY_CONFIG_FILE"),
				"database_url": maskDatabaseURL(databaseURL),
			})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "URL:    %s\n", maskDatabaseURL(databaseURL))
			fmt.Fprintf(out, "Status: %s\n", getDatabaseInfo(db))
			return nil
		},
	})

	dbCmd.AddCommand(resetCmd(databaseURL, resetter, logger))

	return dbCmd
}

func resetCmd(databaseURL string, resetter SchemaResetter, logger *observability.Logger) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every table and re-run the migrations",
		Long: `Drop every table and re-run the migrations. All progress data is lost.
Asks for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			if !yes {
				if !stdinIsTerminal() {
					return contextutils.InvalidInputf("refusing to reset without --yes when stdin is not a terminal")
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Reset %s?", maskDatabaseURL(databaseURL)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			if err := resetter.ResetSchema(ctx, databaseURL); err != nil {
				logger.Error(ctx, "Schema reset failed", err, map[string]interface{}{"database_url": maskDatabaseURL(databaseURL)})
				return contextutils.WrapError(err, "schema reset failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema reset")
			logger.Info(ctx, "Schema reset", map[string]interface{}{"database_url": maskDatabaseURL(databaseURL)})
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation")

	return cmd
}
