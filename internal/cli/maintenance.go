package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/tagrel/internal/storage"
	"github.com/OFFIS-RIT/tagrel/internal/util"

	"github.com/spf13/cobra"
)

type maintenanceTask struct {
	name string
	run  func(context.Context) (int, error)
}

func NewFixCountsCommand(root *RootOptions) *cobra.Command {
	var stale bool
	cmd := &cobra.Command{
		Use:   "fix-counts",
		Short: "Run the count maintenance tasks once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			x, closeFn, err := root.executor(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tasks := []maintenanceTask{
				{"fix_nonzero_counts", x.FixNonzeroCounts},
				{"refresh_post_counts", x.RefreshPostCounts},
			}
			if stale {
				tasks = append(tasks, maintenanceTask{"recover_stale", x.RecoverStale})
			}

			results := make(map[string]int, len(tasks))
			for _, task := range tasks {
				n, err := task.run(ctx)
				if err != nil {
					return root.formatter().Failure(task.name+" failed", err)
				}
				results[task.name] = n
			}
			return root.formatter().Success(results, func(w io.Writer) {
				for _, task := range tasks {
					fmt.Fprintf(w, "%s: %d\n", task.name, results[task.name])
				}
			})
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "also recover stale processing relationships")
	return cmd
}

func NewSnapshotsCommand(root *RootOptions) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "snapshots <id>",
		Short: "List archived undo snapshots of a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := storage.NewS3Client(cmd.Context())
			if client == nil {
				return NewExitError(ExitCommandError, "no S3 archive configured, set AWS_BUCKET")
			}
			archive := storage.NewUndoArchive(client, util.GetEnv("AWS_BUCKET"))

			keys, err := archive.ListUndo(cmd.Context(), id)
			if err != nil {
				return root.formatter().Failure("listing snapshots failed", err)
			}
			if !show {
				return root.formatter().Success(keys, func(w io.Writer) {
					for _, k := range keys {
						fmt.Fprintln(w, k)
					}
				})
			}

			snapshots := make(map[string]any, len(keys))
			for _, k := range keys {
				rec, err := archive.GetUndo(cmd.Context(), k)
				if err != nil {
					return root.formatter().Failure("reading snapshot failed", err)
				}
				snapshots[k] = rec
			}
			return root.formatter().Success(snapshots, func(w io.Writer) {
				for _, k := range keys {
					fmt.Fprintf(w, "%s: %+v\n", k, snapshots[k])
				}
			})
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "download and print every snapshot")
	return cmd
}
