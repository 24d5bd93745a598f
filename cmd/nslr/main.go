// Package main implements the nslr CLI - the command-line front end for the
// neuro-symbolic legal reasoning pipeline.
//
// This file is the entry point and command registration hub. Command
// implementations live in cmd_*.go:
//
//   - cmd_ask.go    - askCmd, runAsk() (one-shot and iterative question answering)
//   - cmd_ontology.go - ontologyCmd, runOntology() (canonical sort/predicate dump)
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nslr/internal/config"
	"nslr/internal/logging"
)

var (
	verbose    bool
	configPath string
	apiKey     string
	timeout    time.Duration

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nslr",
	Short: "nslr - neuro-symbolic legal reasoning CLI",
	Long: `nslr couples a large language model with a first-order-logic solver
to answer Italian civil-law questions.

The model only transduces natural language into a typed logic program and
back; the solver determines what is actually entailed. Logic decides, the
model describes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		loaded := config.DefaultConfig()
		if configPath != "" {
			loaded, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		if apiKey != "" {
			loaded.GeminiAPIKey = apiKey
		}
		if loaded.GeminiAPIKey == "" {
			loaded.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML settings override file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall operation timeout")

	askCmd.Flags().BoolVar(&askIterative, "iterative", false, "Run the bounded refinement loop instead of a single refine pass")
	askCmd.Flags().StringVar(&askReference, "reference-answer", "", "Reference answer to score the pipeline's answer against via the judge")

	rootCmd.AddCommand(
		askCmd,
		ontologyCmd,
	)
}

func newLoggerOrNop() *zap.Logger {
	if logger != nil {
		return logger
	}
	return logging.NewNop()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
