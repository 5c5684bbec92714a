package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dal"
)

func NewCountCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the rows of an entity matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCount(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

func runCount(ctx context.Context, opts *RootOptions, stdin io.Reader, out io.Writer) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	registry, err := loadSchema(opts.Schema)
	if err != nil {
		return err
	}
	in, err := loadFilter(opts.Filter, stdin)
	if err != nil {
		return err
	}
	a, db, err := dal.Open(ctx, cfg, registry, opts.Entity, dal.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	q, err := a.BuildCustomQuery(in.Predicates, in.Connectors, opts.Entity)
	if err != nil {
		return err
	}
	n, err := a.GetCount(ctx, q)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, n)
	return err
}
