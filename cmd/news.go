package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/news"
)

// newNewsCmd creates the 'news' subcommand.
func newNewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Scrape the news listing into a JSON file",
		Long: `Fetches the configured news listing (optionally rendered in headless
Chrome), extracts one record per article and saves them as indented JSON.
An empty scrape leaves existing output untouched.`,
		RunE: runNewsCommand,
	}
}

func runNewsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	scraper, release, err := appInstance.NewsScraper()
	if err != nil {
		return err
	}
	defer release()

	records, err := scraper.Scrape(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrape news: %w", err)
	}

	store, name, err := appInstance.NewsOutput()
	if err != nil {
		return err
	}
	uri, err := news.Save(cmd.Context(), store, name, records)
	if errors.Is(err, news.ErrNoRecords) {
		logger.Warn("no news records extracted; keeping existing output")
		fmt.Fprintln(cmd.OutOrStdout(), "no news records extracted")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("news saved", zap.Int("records", len(records)), zap.String("uri", uri))
	fmt.Fprintf(cmd.OutOrStdout(), "saved %d news records to %s\n", len(records), uri)
	return nil
}
