package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/malbeclabs/nlquery/config"
	"github.com/malbeclabs/nlquery/pkg/logger"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(build BuildInfo) ExitCode {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(build).Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func newRootCmd(build BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "nlquery",
		Short:   "Answer natural-language questions over tabular data.",
		Version: fmt.Sprintf("%s (commit %s, built %s)", build.Version, build.Commit, build.Date),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var provider string
	rootCmd.PersistentFlags().StringVar(&provider, "llm", config.ProviderAuto, "LLM provider (auto, anthropic, ollama, none)")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewQueryCmd().Command(),
		NewProfileCmd().Command(),
		NewServeCmd(build).Command(),
	)

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	return logger.New(os.Stderr, verbose)
}

// rootFlags reads the persistent flags shared by every subcommand.
func rootFlags(cmd *cobra.Command) (verbose bool, provider string, err error) {
	verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return false, "", fmt.Errorf("failed to get verbose flag: %w", err)
	}
	provider, err = cmd.Root().PersistentFlags().GetString("llm")
	if err != nil {
		return false, "", fmt.Errorf("failed to get llm flag: %w", err)
	}
	return verbose, provider, nil
}
