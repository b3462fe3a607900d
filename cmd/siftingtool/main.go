package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/config"
	"github.com/reinkaoss/sifting-tool/internal/logging"
)

// Exit codes.
const (
	exitCodeFailed   = 2 // --fail-on-missing and a subject failed
	exitCodeBadInput = 3
	exitCodeAPIError = 4
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// app is the state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *zap.Logger
}

func main() {
	root := newRootCmd(&app{})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "siftingtool",
		Short:         "Multi-run consensus scoring for candidate screening",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath, os.Getenv)
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = a.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = a.logFormat
			}
			if err := cfg.Validate(); err != nil {
				return withCode(exitCodeBadInput, err)
			}
			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "json", "json or text")

	root.AddCommand(newServeCmd(a), newScoreCmd(a), newClientsCmd(a))
	return root
}
