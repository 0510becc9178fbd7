package main

import (
	"github.com/spf13/cobra"

	"malmohomes/collector/internal/extract"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/scraping"
)

var scrapeFlags struct {
	url      string
	headless bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch and extract a single listing, printing the record as JSON",
	RunE:  runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.url, "url", "", "Listing URL (required)")
	f.BoolVar(&scrapeFlags.headless, "headless", true, "Run the browser headless (default BROWSER_HEADLESS)")

	_ = scrapeCmd.MarkFlagRequired("url")
}

func runScrape(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("headless") {
		app.cfg.Browser.Headless = scrapeFlags.headless
	}

	extractor, err := newExtractor()
	if err != nil {
		return err
	}

	fetcher, err := scraping.NewBrowserFetcher(app.cfg.Browser, app.profile.ChallengeMarkers, app.logger)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	page, err := fetcher.Fetch(cmd.Context(), scrapeFlags.url)
	if err != nil {
		return err
	}

	id := models.Identifier{URL: scrapeFlags.url, PropertyID: extract.PropertyIDFromURL(scrapeFlags.url)}
	property, err := extractor.Extract(cmd.Context(), page, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), property)
}
