package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"malmohomes/collector/config"
	"malmohomes/collector/internal/database"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/output"
	"malmohomes/collector/internal/progress"
	"malmohomes/collector/internal/scraping"
)

// ErrRunHadFailures is returned when the run finished but at least one
// identifier could not be extracted.
var ErrRunHadFailures = errors.New("run finished with failures")

// Extractor turns a fetched page into a validated record.
type Extractor interface {
	Extract(ctx context.Context, page *models.Page, id models.Identifier) (*models.Property, error)
}

// Store receives every committed group.
type Store interface {
	UpsertProperties(ctx context.Context, properties []*models.Property) error
}

// RunOptions controls where a run starts.
type RunOptions struct {
	Resume         bool
	InputSignature string
}

// RunSummary reports the counts of the current run only.
type RunSummary struct {
	RunID       string
	Groups      int
	Processed   int
	Successful  int
	Failed      int
	Skipped     int
	Interrupted bool
	Duration    time.Duration

	extractTime time.Duration
}

func (s *RunSummary) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Processed) * 100
}

// AveragePerProperty is the mean fetch and extract time of attempted identifiers.
func (s *RunSummary) AveragePerProperty() time.Duration {
	if s.Processed == 0 {
		return 0
	}
	return s.extractTime / time.Duration(s.Processed)
}

// BatchProcessor drives one extraction attempt per input identifier, one at a
// time, and commits the results group by group.
type BatchProcessor struct {
	fetcher   scraping.PageFetcher
	extractor Extractor
	tracker   *progress.Tracker
	writer    *output.Writer
	store     Store
	limiter   *rate.Limiter
	config    *config.Config
	logger    *logrus.Logger
}

// NewBatchProcessor creates a processor. tracker and store may be nil.
func NewBatchProcessor(
	fetcher scraping.PageFetcher,
	extractor Extractor,
	tracker *progress.Tracker,
	writer *output.Writer,
	store Store,
	cfg *config.Config,
	logger *logrus.Logger,
) *BatchProcessor {
	limit := rate.Inf
	if cfg.Batch.FetchInterval > 0 {
		limit = rate.Every(cfg.Batch.FetchInterval)
	}
	return &BatchProcessor{
		fetcher:   fetcher,
		extractor: extractor,
		tracker:   tracker,
		writer:    writer,
		store:     store,
		limiter:   rate.NewLimiter(limit, 1),
		config:    cfg,
		logger:    logger,
	}
}

type groupResult struct {
	successes []*models.Property
	failures  []output.Failure
	skipped   int
}

// Run processes items from the resume point to the end. Cancelling ctx stops
// between identifiers; whatever the current group holds is committed first.
func (p *BatchProcessor) Run(ctx context.Context, items []models.Identifier, opts RunOptions) (*RunSummary, error) {
	started := time.Now()
	groupSize := p.config.Batch.GroupSize
	if groupSize <= 0 {
		return nil, fmt.Errorf("group size must be positive, got %d", groupSize)
	}

	meta, err := p.loadMetadata(opts)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: meta.RunID}
	start := meta.NextInputIndex
	group := meta.LastGroup + 1

	p.logger.WithFields(logrus.Fields{
		"run_id":     meta.RunID,
		"items":      len(items),
		"start":      start,
		"group":      group,
		"group_size": groupSize,
	}).Info("Starting collection run")

	for start < len(items) {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		end := min(start+groupSize, len(items))
		result, consumed := p.processGroup(ctx, items[start:end], summary)
		if consumed < end-start {
			summary.Interrupted = true
		}
		if consumed == 0 {
			break
		}

		// Commit even when interrupted, so the partial group is not lost.
		commitCtx := context.WithoutCancel(ctx)
		if err := p.commitGroup(commitCtx, meta, group, start, start+consumed, result); err != nil {
			return summary, err
		}

		summary.Groups++
		summary.Successful += len(result.successes)
		summary.Failed += len(result.failures)
		summary.Skipped += result.skipped
		summary.Processed += len(result.successes) + len(result.failures)

		start += consumed
		group++
	}

	summary.Duration = time.Since(started)
	p.logSummary(summary, meta)

	if summary.Failed > 0 {
		return summary, ErrRunHadFailures
	}
	return summary, nil
}

func (p *BatchProcessor) loadMetadata(opts RunOptions) (*output.Metadata, error) {
	path := p.writer.MetadataPath()
	if !opts.Resume {
		return p.newRun(opts)
	}

	meta, err := output.LoadMetadata(path)
	if errors.Is(err, os.ErrNotExist) {
		return p.newRun(opts)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot resume, rerun with --no-resume to start over: %w", err)
	}
	if meta.InputSignature != opts.InputSignature {
		return nil, fmt.Errorf("cannot resume run %s: it was started for %q, not %q", meta.RunID, meta.InputSignature, opts.InputSignature)
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":     meta.RunID,
		"last_group": meta.LastGroup,
		"next_index": meta.NextInputIndex,
	}).Info("Resuming previous run")
	return meta, nil
}

// newRun starts fresh metadata. Group numbering restarts at 1, so group files
// left by an earlier run are removed first.
func (p *BatchProcessor) newRun(opts RunOptions) (*output.Metadata, error) {
	if err := p.writer.ClearGroups(); err != nil {
		return nil, err
	}
	return output.NewMetadata(opts.InputSignature, p.config.Batch.GroupSize), nil
}

// processGroup attempts every identifier of one group and reports how many
// input rows it got through before ctx was cancelled.
func (p *BatchProcessor) processGroup(ctx context.Context, items []models.Identifier, summary *RunSummary) (groupResult, int) {
	var result groupResult

	for i, id := range items {
		if ctx.Err() != nil {
			return result, i
		}
		if p.tracker != nil && p.tracker.ShouldSkip(id) {
			result.skipped++
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return result, i
		}

		begin := time.Now()
		prop, err := p.processOne(ctx, id)
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-fetch; the row stays pending for the next run.
			return result, i
		}
		summary.extractTime += time.Since(begin)

		logger := p.logger.WithFields(logrus.Fields{
			"url":         id.URL,
			"property_id": id.PropertyID,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to extract property")
			result.failures = append(result.failures, output.Failure{
				URL:        id.URL,
				PropertyID: id.PropertyID,
				Error:      err.Error(),
			})
			continue
		}

		logger.WithField("duration", time.Since(begin).Round(time.Millisecond)).Debug("Extracted property")
		result.successes = append(result.successes, prop)
	}

	return result, len(items)
}

func (p *BatchProcessor) processOne(ctx context.Context, id models.Identifier) (prop *models.Property, err error) {
	defer func() {
		if r := recover(); r != nil {
			prop = nil
			err = fmt.Errorf("panic while processing %s: %v", id.URL, r)
		}
	}()

	page, err := p.fetcher.Fetch(ctx, id.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	return p.extractor.Extract(ctx, page, id)
}

// commitGroup persists one group. The metadata save is the commit point; the
// progress cache is updated only after it.
func (p *BatchProcessor) commitGroup(ctx context.Context, meta *output.Metadata, group, inputStart, inputEnd int, result groupResult) error {
	info := output.GroupInfo{
		Group:      group,
		Count:      len(result.successes),
		Failed:     len(result.failures),
		Skipped:    result.skipped,
		InputStart: inputStart,
		InputEnd:   inputEnd,
	}

	// A slot may hold files from an earlier attempt that crashed before its
	// metadata save; they are replaced or removed so disk matches metadata.
	if len(result.successes) > 0 {
		name, sizeKB, err := p.writer.WriteGroup(group, result.successes)
		if err != nil {
			return err
		}
		info.File = name
		info.FileSizeKB = sizeKB
	} else if err := p.writer.RemoveGroupFile(group); err != nil {
		return err
	}

	if len(result.failures) > 0 {
		name, err := p.writer.WriteFailures(group, result.failures)
		if err != nil {
			return err
		}
		info.FailuresFile = name
	} else if err := p.writer.RemoveFailuresFile(group); err != nil {
		return err
	}

	if p.store != nil && len(result.successes) > 0 {
		if err := p.storeGroup(ctx, result.successes); err != nil {
			return err
		}
	}

	info.Timestamp = time.Now().UTC()
	meta.Record(info)
	if err := meta.Save(p.writer.MetadataPath()); err != nil {
		return err
	}

	if p.tracker != nil && len(result.successes) > 0 {
		for _, prop := range result.successes {
			p.tracker.RecordSuccess(prop.Identifier())
		}
		if err := p.tracker.Save(); err != nil {
			p.logger.WithError(err).Warn("Failed to save progress cache")
		}
	}

	p.logger.WithFields(logrus.Fields{
		"group":      group,
		"successful": info.Count,
		"failed":     info.Failed,
		"skipped":    info.Skipped,
		"input":      fmt.Sprintf("%d-%d", inputStart, inputEnd),
	}).Info("Committed group")
	return nil
}

// storeGroup upserts with retry on transient lock conflicts.
func (p *BatchProcessor) storeGroup(ctx context.Context, batch []*models.Property) error {
	var err error
	for attempt := 0; attempt <= p.config.Batch.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying store write, attempt %d of %d", attempt, p.config.Batch.MaxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.Batch.RetryDelay):
			}
		}

		err = p.store.UpsertProperties(ctx, batch)
		if err == nil {
			return nil
		}
		if !database.IsRetryable(err) {
			return fmt.Errorf("failed to store batch: %w", err)
		}
		p.logger.WithError(err).Warn("Store is busy")
	}

	return fmt.Errorf("failed to store batch after %d attempts: %w", p.config.Batch.MaxRetries, err)
}

func (p *BatchProcessor) logSummary(s *RunSummary, meta *output.Metadata) {
	p.logger.WithFields(logrus.Fields{
		"run_id":           s.RunID,
		"groups":           s.Groups,
		"processed":        s.Processed,
		"successful":       s.Successful,
		"failed":           s.Failed,
		"skipped":          s.Skipped,
		"success_rate":     fmt.Sprintf("%.1f%%", s.SuccessRate()),
		"avg_per_property": s.AveragePerProperty().Round(time.Millisecond),
		"duration":         s.Duration.Round(time.Second),
		"interrupted":      s.Interrupted,
		"total_successful": meta.TotalSuccessful,
		"total_failed":     meta.TotalFailed,
	}).Info("Collection run finished")

	if s.Skipped > 0 {
		p.logger.WithField("skipped", s.Skipped).Info("Skipped identifiers already in the progress cache")
	}
}
