package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dvloznov/basket-export/internal/config"
	"github.com/dvloznov/basket-export/internal/logger"
)

var Version = "dev"

// globalFlags override values loaded from the environment.
type globalFlags struct {
	input          string
	source         string
	output         string
	ledger         string
	format         string
	pipelineConfig string
	logLevel       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "basketctl",
		Short:         "Canonical basket export pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := flags.logLevel
			if level == "" {
				level = os.Getenv("BX_LOG_LEVEL")
			}
			log := logger.NewWithLevel(level)
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.input, "input", "", "Input directory or gs:// prefix (BX_INPUT_DIR)")
	pf.StringVar(&flags.source, "source", "", "Input source: files or bigquery (BX_SOURCE)")
	pf.StringVarP(&flags.output, "output", "o", "", "Artifact directory or gs:// prefix (BX_OUTPUT_DIR)")
	pf.StringVar(&flags.ledger, "ledger", "", "SQLite ledger path (BX_LEDGER_PATH)")
	pf.StringVar(&flags.format, "format", "", "Artifact format: csv or xlsx")
	pf.StringVar(&flags.pipelineConfig, "config", "", "Pipeline YAML file (BX_PIPELINE_CONFIG)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (BX_LOG_LEVEL)")

	rootCmd.AddCommand(exportCmd(flags))
	rootCmd.AddCommand(snapshotsCmd(flags))

	return rootCmd
}

// loadConfig reads the environment and applies command line overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if f.pipelineConfig != "" {
		p, err := config.LoadPipelineFile(f.pipelineConfig)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = p
	}
	if f.input != "" {
		cfg.Input.Dir = f.input
	}
	if f.source != "" {
		cfg.Input.Source = f.source
	}
	if f.output != "" {
		cfg.Output.Dir = f.output
	}
	if f.ledger != "" {
		cfg.Output.LedgerPath = f.ledger
	}
	if f.format != "" {
		cfg.Pipeline.Format = f.format
	}
	return cfg, nil
}
