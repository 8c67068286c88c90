package cli

import (
	"encoding/json"
	"fmt"

	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/spf13/cobra"
)

type ProfileCmd struct{}

func NewProfileCmd() *ProfileCmd {
	return &ProfileCmd{}
}

func (c *ProfileCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Describe the columns of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}
			topValues, err := cmd.Flags().GetInt("top-values")
			if err != nil {
				return fmt.Errorf("failed to get top-values flag: %w", err)
			}
			ds, err := readDataFlags(cmd.Flags())
			if err != nil {
				return err
			}

			analyzer, err := metadata.NewAnalyzer(metadata.AnalyzerConfig{TopK: topValues})
			if err != nil {
				return err
			}
			md := analyzer.Analyze(ds)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(md)
			}
			renderProfile(out, md)
			return nil
		},
	}

	addDataFlags(cmd.Flags())
	cmd.Flags().Bool("json", false, "print the profile as json")
	cmd.Flags().Int("top-values", 0, "most frequent values kept per text column (default from analyzer)")

	return cmd
}
