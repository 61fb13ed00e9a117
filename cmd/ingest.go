package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// newIngestCmd creates the 'ingest' subcommand, which performs one pass over
// the popular listing.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Download posters for the popular titles",
		Long: `Resolves the image configuration, lists popular titles, fetches each
title's details and downloads its poster into the configured store. A JSON
manifest of the run is written next to the posters.`,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	manifest := appInstance.ManifestWriter()
	loop, err := appInstance.IngestLoop(manifest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := loop.Run(ctx)

	if uri, err := manifest.Write(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn("manifest write failed", zap.Error(err))
	} else {
		logger.Info("manifest written", zap.String("uri", uri))
	}
	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logger.Warn("metrics textfile write failed", zap.String("path", path), zap.Error(err))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s %s: listed=%d attempted=%d completed=%d failed=%d skipped=%d downloaded=%d (%s)\n",
		summary.RunID,
		summary.State,
		summary.Listed,
		summary.Attempted,
		summary.Completed,
		summary.Failed,
		summary.Skipped,
		summary.Downloaded,
		humanize.Bytes(uint64(max(summary.Bytes, 0))),
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("ingest run: %w", runErr)
	}
	return nil
}
