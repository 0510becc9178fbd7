package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"malmohomes/collector/internal/models"
)

var extractFlags struct {
	html       string
	url        string
	propertyID string
	calls      string
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction on a saved page without a browser",
	Long: `Extracts a record from a page saved to disk. Network calls captured while the
page rendered can be supplied as a JSON array of {"url","method","body"} objects
so coordinate recovery works offline too.`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.html, "html", "", "Saved page HTML (required)")
	f.StringVar(&extractFlags.url, "url", "", "URL the page was fetched from (required)")
	f.StringVar(&extractFlags.propertyID, "property-id", "", "Listing id (derived from the URL when empty)")
	f.StringVar(&extractFlags.calls, "calls", "", "JSON file with captured network calls")

	_ = extractCmd.MarkFlagRequired("html")
	_ = extractCmd.MarkFlagRequired("url")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	html, err := os.ReadFile(extractFlags.html)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	page := &models.Page{
		URL:       extractFlags.url,
		HTML:      string(html),
		FetchedAt: time.Now(),
	}
	if extractFlags.calls != "" {
		data, err := os.ReadFile(extractFlags.calls)
		if err != nil {
			return fmt.Errorf("failed to read network calls: %w", err)
		}
		if err := json.Unmarshal(data, &page.Calls); err != nil {
			return fmt.Errorf("failed to parse network calls: %w", err)
		}
	}

	extractor, err := newExtractor()
	if err != nil {
		return err
	}

	id := models.Identifier{URL: extractFlags.url, PropertyID: extractFlags.propertyID}
	property, err := extractor.Extract(cmd.Context(), page, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), property)
}
