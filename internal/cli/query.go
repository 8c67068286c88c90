package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/query"
	"github.com/spf13/cobra"
)

type QueryCmd struct{}

func NewQueryCmd() *QueryCmd {
	return &QueryCmd{}
}

func (c *QueryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only query against a dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			useIndex, err := cmd.Flags().GetBool("index")
			if err != nil {
				return fmt.Errorf("failed to get index flag: %w", err)
			}
			ds, err := readDataFlags(cmd.Flags())
			if err != nil {
				return err
			}

			log := newLogger(verbose)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var opts query.Options
			if useIndex && ds.Len() > 0 {
				idx, err := indexer.Build(ctx, ds, time.Now())
				if err != nil {
					log.Warn("cli: failed to build index, scanning rows", "error", err)
				} else {
					opts.Index = idx
				}
			}

			res, err := query.Run(ctx, strings.Join(args, " "), ds, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderRows(out, res.Columns, res.Rows)
			fmt.Fprintf(out, "%d rows", len(res.Rows))
			if res.Truncated {
				fmt.Fprintf(out, " (limited from %d)", res.RowCountBeforeLimit)
			}
			fmt.Fprintln(out)
			log.Debug("cli: query finished", "dataset", ds.ID, "usedIndex", res.UsedIndex)
			return nil
		},
	}

	addDataFlags(cmd.Flags())
	cmd.Flags().Bool("index", true, "build a dataset index to serve equality filters and aggregates")

	return cmd
}
