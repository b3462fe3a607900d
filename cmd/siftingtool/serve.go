package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/archive"
	"github.com/reinkaoss/sifting-tool/internal/clients"
	"github.com/reinkaoss/sifting-tool/internal/columns"
	"github.com/reinkaoss/sifting-tool/internal/llm"
	"github.com/reinkaoss/sifting-tool/internal/pipeline"
	"github.com/reinkaoss/sifting-tool/internal/server"
	"github.com/reinkaoss/sifting-tool/internal/sheets"
	"github.com/reinkaoss/sifting-tool/internal/webhook"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	reg, err := clients.Open(cfg.Storage.ClientsFile, logger)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}

	provider, err := llm.NewProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey())
	if err != nil {
		return withCode(exitCodeAPIError, err)
	}

	opts := pipeline.Options{
		Passes:      cfg.LLM.Passes,
		StartColumn: columns.ColumnNumber(cfg.Sheets.StartColumn),
		Stars:       cfg.Sheets.Stars,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLMTimeout(),
	}
	deps := server.Deps{
		Clients:     reg,
		StartColumn: opts.StartColumn,
		AllowOrigin: cfg.Server.AllowOrigin,
	}

	var opener sheets.Opener
	if cfg.Sheets.Credentials != "" || cfg.Sheets.CredentialsFile != "" {
		creds, err := sheets.Credentials(cfg.Sheets.Credentials, cfg.Sheets.CredentialsFile)
		if err != nil {
			return withCode(exitCodeBadInput, err)
		}
		client, err := sheets.NewClient(ctx, creds, cfg.Sheets.SpreadsheetID, logger)
		if err != nil {
			return withCode(exitCodeAPIError, err)
		}
		opener = client
		deps.Sheets = client
	} else {
		logger.Warn("no spreadsheet credentials configured; sheet routes are disabled")
	}

	if cfg.Storage.ArchivePath != "" {
		store, err := archive.Open(cfg.Storage.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Archive = store
		deps.Batches = store
	}
	if cfg.Webhook.URL != "" {
		opts.Notifier = webhook.New(cfg.Webhook.URL, nil, cfg.WebhookTimeout(), logger)
	}

	deps.Analyzer = pipeline.New(llm.NewRunner(provider, cfg.LLM.Parallel, logger), opener, opts, logger)

	logger.Info("starting service",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.LLM.Provider),
		zap.Int("passes", cfg.LLM.Passes),
		zap.Int("clients", len(reg.List())),
		zap.Bool("archive", cfg.Storage.ArchivePath != ""),
		zap.Bool("webhook", cfg.Webhook.URL != ""))

	if err := server.New(deps, logger).ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
