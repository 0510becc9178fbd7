package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"malmohomes/collector/internal/database"
	"malmohomes/collector/internal/output"
	"malmohomes/collector/internal/processor"
	"malmohomes/collector/internal/progress"
	"malmohomes/collector/internal/scheduler"
	"malmohomes/collector/internal/scraping"
	"malmohomes/collector/internal/telegram"
)

var collectFlags struct {
	input         string
	outputDir     string
	groupSize     int
	offset        int
	limit         int
	resume        bool
	noResume      bool
	headless      bool
	skipProcessed bool
	progressCache string
	db            string
	noDB          bool
	every         time.Duration
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Extract every listing in an input CSV into batch output",
	Long: `Reads listing URLs from a CSV file (url column, optional property_id column),
renders each page, extracts a validated record and writes one Parquet file per
group together with a failures CSV and run metadata.

Exit code 0 means every attempted listing succeeded, 1 that some failed, and
2 that the run stopped on a fatal error.

With --every the command keeps running and re-reads the input on each cycle,
so rows appended to the CSV are collected by the next cycle.`,
	RunE: runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&collectFlags.input, "input", "", "Input CSV file (required)")
	f.StringVar(&collectFlags.outputDir, "output-dir", "", "Batch output directory (default OUTPUT_DIR)")
	f.IntVar(&collectFlags.groupSize, "group-size", 0, "Listings per output group (default BATCH_GROUP_SIZE)")
	f.IntVar(&collectFlags.offset, "offset", 0, "Skip this many input rows")
	f.IntVar(&collectFlags.limit, "limit", 0, "Read at most this many input rows (0 = all)")
	f.BoolVar(&collectFlags.resume, "resume", true, "Continue the run recorded in the output directory")
	f.BoolVar(&collectFlags.noResume, "no-resume", false, "Start a new run even if one is recorded")
	f.BoolVar(&collectFlags.headless, "headless", true, "Run the browser headless (default BROWSER_HEADLESS)")
	f.BoolVar(&collectFlags.skipProcessed, "skip-processed", true, "Skip listings already in the progress cache")
	f.StringVar(&collectFlags.progressCache, "progress-cache", "", "Progress cache file (default <output-dir>/progress_cache.json)")
	f.StringVar(&collectFlags.db, "db", "", "Consolidated SQLite database (default <output-dir>/properties.db)")
	f.BoolVar(&collectFlags.noDB, "no-db", false, "Do not upsert records into the database")
	f.DurationVar(&collectFlags.every, "every", 0, "Repeat the collection on this interval until interrupted")

	_ = collectCmd.MarkFlagRequired("input")
	collectCmd.MarkFlagsMutuallyExclusive("resume", "no-resume")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg := app.cfg
	logger := app.logger

	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = collectFlags.headless
	}
	if collectFlags.groupSize > 0 {
		cfg.Batch.GroupSize = collectFlags.groupSize
	}
	outputDir := cfg.Paths.OutputDir
	if collectFlags.outputDir != "" {
		outputDir = collectFlags.outputDir
	}
	resume := collectFlags.resume && !collectFlags.noResume

	writer, err := output.NewWriter(outputDir, logger)
	if err != nil {
		return err
	}

	var tracker *progress.Tracker
	if collectFlags.skipProcessed {
		path := collectFlags.progressCache
		if path == "" {
			path = cfg.Paths.ProgressCache
		}
		if path == "" {
			path = filepath.Join(outputDir, "progress_cache.json")
		}
		tracker = progress.NewTracker(path, logger)
	}

	var store processor.Store
	if !collectFlags.noDB {
		db, err := database.NewDatabase(databasePath(collectFlags.db, outputDir), logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	}

	extractor, err := newExtractor()
	if err != nil {
		return err
	}

	fetcher, err := scraping.NewBrowserFetcher(cfg.Browser, app.profile.ChallengeMarkers, logger)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	p := processor.NewBatchProcessor(fetcher, extractor, tracker, writer, store, cfg, logger)
	signature := processor.InputSignature(collectFlags.input, collectFlags.offset, collectFlags.limit, cfg.Batch.GroupSize)

	collectOnce := func(ctx context.Context, resume bool) error {
		items, err := processor.ReadInput(collectFlags.input, collectFlags.offset, collectFlags.limit)
		if err != nil {
			return err
		}
		logger.WithField("items", len(items)).Info("Loaded input")

		summary, runErr := p.Run(ctx, items, processor.RunOptions{
			Resume:         resume,
			InputSignature: signature,
		})
		printSummary(cmd, summary)
		notifyRun(ctx, outputDir, summary, runErr)
		return runErr
	}

	if collectFlags.every <= 0 {
		return collectOnce(cmd.Context(), resume)
	}

	sched, err := scheduler.NewScheduler(collectFlags.every, func(ctx context.Context, cycle int) error {
		// Later cycles always continue the run started by the first one.
		return collectOnce(ctx, resume || cycle > 1)
	}, logger)
	if err != nil {
		return err
	}
	return sched.Run(cmd.Context())
}

func printSummary(cmd *cobra.Command, summary *processor.RunSummary) {
	if summary == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:         %s\n", summary.RunID)
	fmt.Fprintf(out, "Groups:      %d\n", summary.Groups)
	fmt.Fprintf(out, "Processed:   %d\n", summary.Processed)
	fmt.Fprintf(out, "Successful:  %d (%.1f%%)\n", summary.Successful, summary.SuccessRate())
	fmt.Fprintf(out, "Failed:      %d\n", summary.Failed)
	fmt.Fprintf(out, "Skipped:     %d\n", summary.Skipped)
	fmt.Fprintf(out, "Avg/listing: %s\n", summary.AveragePerProperty().Round(time.Millisecond))
	if summary.Interrupted {
		fmt.Fprintln(out, "Interrupted: progress saved, rerun to resume")
	}
}

// notifyRun reports the run to Telegram. It runs after cancellation too, so it
// gets its own deadline.
func notifyRun(parent context.Context, outputDir string, summary *processor.RunSummary, runErr error) {
	svc := telegram.NewService(app.cfg.Telegram, app.logger)
	if !svc.Enabled() {
		return
	}

	report := telegram.RunReport{OutputDir: outputDir}
	if summary != nil {
		report.RunID = summary.RunID
		report.Groups = summary.Groups
		report.Processed = summary.Processed
		report.Successful = summary.Successful
		report.Failed = summary.Failed
		report.Skipped = summary.Skipped
		report.SuccessRate = summary.SuccessRate()
		report.Duration = summary.Duration
		report.Interrupted = summary.Interrupted
	}
	if runErr != nil && !errors.Is(runErr, processor.ErrRunHadFailures) {
		report.Fatal = runErr
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 15*time.Second)
	defer cancel()
	_ = svc.NotifyRunSummary(ctx, report)
}
