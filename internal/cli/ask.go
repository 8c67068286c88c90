package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/malbeclabs/nlquery/pkg/pipeline"
	"github.com/spf13/cobra"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a natural-language question about a dataset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, provider, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			historyPath, err := cmd.Flags().GetString("history")
			if err != nil {
				return fmt.Errorf("failed to get history flag: %w", err)
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}

			ds, err := readDataFlags(cmd.Flags())
			if err != nil {
				return err
			}

			var history []pipeline.HistoryEntry
			if historyPath != "" {
				history, err = pipeline.LoadHistory(historyPath)
				if err != nil {
					return err
				}
			}

			log := newLogger(verbose)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			eng, err := newEngine(log, provider)
			if err != nil {
				return err
			}
			defer eng.Close()

			res := eng.pipeline.Run(ctx, pipeline.Request{
				Question:  strings.Join(args, " "),
				Rows:      ds.Rows,
				Columns:   ds.Columns,
				DatasetID: ds.ID,
				History:   history,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, res)
			if !res.Success && !res.NeedsClarification {
				return fmt.Errorf("question could not be answered")
			}
			return nil
		},
	}

	addDataFlags(cmd.Flags())
	cmd.Flags().String("history", "", "yaml file of previously answered questions used as examples")
	cmd.Flags().Bool("json", false, "print the full result as json")

	return cmd
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, res.Answer)
	if res.NeedsClarification {
		for _, q := range res.ClarificationQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
		return
	}
	if len(res.Data) > 0 && len(res.Columns) > 0 {
		fmt.Fprintln(w)
		renderRows(w, res.Columns, res.Data)
	}
	fmt.Fprintln(w)
	if res.Query != "" {
		fmt.Fprintf(w, "Query:       %s\n", res.Query)
	}
	if res.Method != "" {
		fmt.Fprintf(w, "Method:      %s\n", res.Method)
	}
	fmt.Fprintf(w, "Confidence:  %.2f\n", res.Confidence)
	if res.Explanation != "" {
		fmt.Fprintf(w, "Explanation: %s\n", res.Explanation)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning:     %s\n", warning)
	}
}
