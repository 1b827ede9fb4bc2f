// Package cli implements the tagrel operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/logger/console"
	pgxstore "github.com/OFFIS-RIT/tagrel/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var validate = validator.New()

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string
	DatabaseURL string
	// Wait blocks on a relationship held by a worker instead of failing.
	Wait bool

	out io.Writer
}

func (o *RootOptions) formatter() *OutputFormatter {
	w := o.out
	if w == nil {
		w = os.Stdout
	}
	return &OutputFormatter{Format: o.Format, Writer: w}
}

// executor connects to the database and builds an engine that runs jobs in
// this process. The returned func closes the pool.
func (o *RootOptions) executor(ctx context.Context, opts ...engine.Option) (*engine.Executor, func(), error) {
	if o.DatabaseURL == "" {
		return nil, nil, NewExitError(ExitCommandError, "no database url, set DATABASE_URL or --database-url")
	}
	pool, err := pgxpool.New(ctx, o.DatabaseURL)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
	}
	opts = append([]engine.Option{engine.WithLocker(leaselock.New(pool))}, opts...)
	x := engine.New(pgxstore.New(pool), engine.Config{
		MaxRetries: int(util.GetEnvNumeric("PROCESS_MAX_RETRIES", engine.DefaultMaxRetries)),
		Lease:      o.leaseOptions(),
	}, opts...)
	return x, pool.Close, nil
}

func (o *RootOptions) leaseOptions() leaselock.Options {
	return leaselock.Options{
		TokenPrefix:  "cli/",
		Wait:         o.Wait,
		WaitInterval: time.Second,
		WaitJitter:   250 * time.Millisecond,
	}
}

// NewRootCommand creates the root command of the tagrel CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "tagrel",
		Short:         "Tag alias and implication processing",
		Long:          "Operator tooling for tag aliases and implications: schema migrations, lifecycle operations and maintenance.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug: opts.Verbose,
				JSON:  util.GetEnvBool("LOG_JSON", false),
			}))
			opts.out = cmd.OutOrStdout()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", util.GetEnv("DATABASE_URL"), "postgres connection url")
	cmd.PersistentFlags().BoolVar(&opts.Wait, "wait", false, "wait for a relationship held by a worker instead of failing")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewRejectCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewUndoCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewTransitivesCommand(opts))
	cmd.AddCommand(NewFixCountsCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))

	return cmd
}
