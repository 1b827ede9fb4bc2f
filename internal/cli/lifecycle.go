package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"

	"github.com/spf13/cobra"
)

type createInput struct {
	Kind       string `validate:"required,oneof=alias implication"`
	Antecedent string `validate:"required,max=100"`
	Consequent string `validate:"required,max=100"`
	CreatorID  int64  `validate:"required,gt=0"`
	Thread     string `validate:"max=200"`
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid relationship id %q", arg))
	}
	return id, nil
}

func NewCreateCommand(root *RootOptions) *cobra.Command {
	in := &createInput{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending alias or implication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(in); err != nil {
				return WrapExitError(ExitCommandError, "invalid input", err)
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := x.Create(cmd.Context(), engine.CreateParams{
				Kind:           common.Kind(in.Kind),
				Antecedent:     in.Antecedent,
				Consequent:     in.Consequent,
				CreatorID:      in.CreatorID,
				ForumThreadRef: in.Thread,
			})
			if err != nil {
				return root.formatter().Failure("create failed", err)
			}
			return root.formatter().Success(r, func(w io.Writer) { printRelationship(w, r) })
		},
	}
	cmd.Flags().StringVar(&in.Kind, "kind", "alias", "alias or implication")
	cmd.Flags().StringVar(&in.Antecedent, "antecedent", "", "antecedent tag name")
	cmd.Flags().StringVar(&in.Consequent, "consequent", "", "consequent tag name")
	cmd.Flags().Int64Var(&in.CreatorID, "creator", 0, "creator user id")
	cmd.Flags().StringVar(&in.Thread, "thread", "", "forum thread reference")
	return cmd
}

func NewQueueCommand(root *RootOptions) *cobra.Command {
	var approver int64
	cmd := &cobra.Command{
		Use:   "queue <id>",
		Short: "Approve a pending relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if approver <= 0 {
				return NewExitError(ExitCommandError, "--approver is required")
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := x.Queue(cmd.Context(), id, approver)
			if err != nil {
				return root.formatter().Failure("queue failed", err)
			}
			return root.formatter().Success(r, func(w io.Writer) { printRelationship(w, r) })
		},
	}
	cmd.Flags().Int64Var(&approver, "approver", 0, "approver user id")
	return cmd
}

func NewRejectCommand(root *RootOptions) *cobra.Command {
	var actor int64
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending or queued relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := x.Reject(cmd.Context(), id, actor, reason)
			if err != nil {
				return root.formatter().Failure("reject failed", err)
			}
			return root.formatter().Success(r, func(w io.Writer) { printRelationship(w, r) })
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id")
	cmd.Flags().StringVar(&reason, "reason", "", "reason posted to the forum")
	return cmd
}

func NewRunCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Process a queued or errored relationship in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := x.Run(cmd.Context(), id); err != nil {
				return root.formatter().Failure("run failed", err)
			}
			return root.formatter().Success(map[string]any{"relationship_id": id, "status": common.StatusActive}, func(w io.Writer) {
				fmt.Fprintf(w, "relationship %d is active\n", id)
			})
		},
	}
}

func NewUndoCommand(root *RootOptions) *cobra.Command {
	var actor int64
	cmd := &cobra.Command{
		Use:   "undo <id>",
		Short: "Revert an active relationship from its undo record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := x.Undo(cmd.Context(), id, actor); err != nil {
				return root.formatter().Failure("undo failed", err)
			}
			return root.formatter().Success(map[string]any{"relationship_id": id, "status": common.StatusPending}, func(w io.Writer) {
				fmt.Fprintf(w, "relationship %d was undone and is pending again\n", id)
			})
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id")
	return cmd
}

func NewTransitivesCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transitives <id>",
		Short: "List relationships chaining through the antecedent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			x, closeFn, err := root.executor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			edges, err := x.Transitives(cmd.Context(), id)
			if err != nil {
				return root.formatter().Failure("transitive lookup failed", err)
			}
			return root.formatter().Success(edges, func(w io.Writer) {
				if len(edges) == 0 {
					fmt.Fprintln(w, "no transitive relationships")
					return
				}
				for _, e := range edges {
					fmt.Fprintf(w, "%s: %s => [[%s]] -> [[%s]]\n", e.Other.Title(), e.Chain, e.NewAntecedent, e.NewConsequent)
				}
			})
		},
	}
}
