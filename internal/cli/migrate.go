package cli

import (
	"fmt"
	"io"

	"github.com/OFFIS-RIT/tagrel/migrations"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrations.Up(root.DatabaseURL); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}
			return nil
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrations.Down(root.DatabaseURL, steps); err != nil {
				return WrapExitError(ExitCommandError, "rollback failed", err)
			}
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, dirty, err := migrations.Version(root.DatabaseURL)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read version", err)
			}
			return root.formatter().Success(map[string]any{"version": v, "dirty": dirty}, func(w io.Writer) {
				fmt.Fprintf(w, "version %d (dirty=%t)\n", v, dirty)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
