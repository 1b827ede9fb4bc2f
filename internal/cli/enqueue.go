package cli

import (
	"fmt"
	"io"

	"github.com/OFFIS-RIT/tagrel/internal/queue"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"

	"github.com/spf13/cobra"
)

func NewEnqueueCommand(root *RootOptions) *cobra.Command {
	var operation string
	var actor int64
	cmd := &cobra.Command{
		Use:   "enqueue <id>",
		Short: "Publish a process or undo job for the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			job := engine.Job{RelationshipID: id, Operation: engine.Operation(operation), ActorID: actor}
			if err := validate.Struct(job); err != nil {
				return WrapExitError(ExitCommandError, "invalid job", err)
			}

			conn := queue.Init()
			defer conn.Close()
			ch, err := conn.Channel()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open channel", err)
			}
			defer ch.Close()
			if err := queue.SetupQueues(ch, []string{queue.JobQueue}); err != nil {
				return WrapExitError(ExitCommandError, "failed to set up queues", err)
			}

			if err := queue.NewDispatcher(ch).Dispatch(cmd.Context(), job); err != nil {
				return root.formatter().Failure("enqueue failed", err)
			}
			return root.formatter().Success(job, func(w io.Writer) {
				fmt.Fprintf(w, "queued %s job for relationship %d\n", job.Operation, id)
			})
		},
	}
	cmd.Flags().StringVar(&operation, "operation", string(engine.OperationProcess), "process or undo")
	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id for undo")
	return cmd
}
