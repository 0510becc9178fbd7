package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"malmohomes/collector/config"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/output"
	"malmohomes/collector/internal/progress"
)

// MockFetcher is a mock implementation of scraping.PageFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*models.Page, error) {
	args := m.Called(ctx, url)
	if fn, ok := args.Get(0).(func(context.Context, string) *models.Page); ok {
		return fn(ctx, url), args.Error(1)
	}
	page, _ := args.Get(0).(*models.Page)
	return page, args.Error(1)
}

func (m *MockFetcher) Close() error {
	return nil
}

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertProperties(ctx context.Context, properties []*models.Property) error {
	args := m.Called(ctx, properties)
	return args.Error(0)
}

// stubExtractor builds a minimal sold record per identifier.
type stubExtractor struct {
	fail   map[string]bool
	panics map[string]bool
}

func (s *stubExtractor) Extract(_ context.Context, page *models.Page, id models.Identifier) (*models.Property, error) {
	if s.panics[id.PropertyID] {
		panic("unexpected page shape")
	}
	if s.fail[id.PropertyID] {
		return nil, fmt.Errorf("living_area: value 5 out of range")
	}
	return &models.Property{
		PropertyID: id.PropertyID,
		Kind:       models.KindSold,
		URL:        page.URL,
		ScrapedAt:  time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}, nil
}

type testEnv struct {
	fetcher   *MockFetcher
	extractor *stubExtractor
	store     *MockStore
	writer    *output.Writer
	tracker   *progress.Tracker
	cfg       *config.Config
	logger    *logrus.Logger
	dir       string
}

func newTestEnv(t *testing.T, groupSize int) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	writer, err := output.NewWriter(dir, logger)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Batch.GroupSize = groupSize
	cfg.Batch.MaxRetries = 3
	cfg.Batch.RetryDelay = time.Millisecond

	return &testEnv{
		fetcher:   &MockFetcher{},
		extractor: &stubExtractor{fail: map[string]bool{}, panics: map[string]bool{}},
		store:     &MockStore{},
		writer:    writer,
		tracker:   progress.NewTracker(filepath.Join(dir, "progress_cache.json"), logger),
		cfg:       cfg,
		logger:    logger,
		dir:       dir,
	}
}

func (e *testEnv) processor() *BatchProcessor {
	return NewBatchProcessor(e.fetcher, e.extractor, e.tracker, e.writer, e.store, e.cfg, e.logger)
}

func (e *testEnv) serveAll() {
	e.fetcher.On("Fetch", mock.Anything, mock.Anything).Return(func(_ context.Context, url string) *models.Page {
		return &models.Page{URL: url, HTML: "<html></html>"}
	}, nil)
}

func testItems(n int) []models.Identifier {
	items := make([]models.Identifier, n)
	for i := range items {
		id := fmt.Sprintf("%d", i+1)
		items[i] = models.Identifier{PropertyID: id, URL: "https://www.hemnet.se/salda/lagenhet-" + id}
	}
	return items
}

func TestNewBatchProcessor(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.processor()

	assert.NotNil(t, p)
	assert.Equal(t, env.writer, p.writer)
	assert.Equal(t, env.cfg, p.config)
	assert.Equal(t, env.logger, p.logger)
	assert.NotNil(t, p.limiter)
}

func TestBatchProcessor_Run(t *testing.T) {
	env := newTestEnv(t, 2)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)
	env.extractor.fail["3"] = true

	summary, err := env.processor().Run(context.Background(), testItems(5), RunOptions{InputSignature: "sig"})
	require.ErrorIs(t, err, ErrRunHadFailures)

	assert.Equal(t, 3, summary.Groups)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Interrupted)
	assert.InDelta(t, 80.0, summary.SuccessRate(), 0.001)

	for _, name := range []string{"group_0001.parquet", "group_0002.parquet", "group_0002_failures.csv", "group_0003.parquet"} {
		assert.FileExists(t, filepath.Join(env.dir, name))
	}
	assert.NoFileExists(t, filepath.Join(env.dir, "group_0001_failures.csv"))

	group2, err := output.ReadGroup(filepath.Join(env.dir, "group_0002.parquet"))
	require.NoError(t, err)
	require.Len(t, group2, 1)
	assert.Equal(t, "4", group2[0].PropertyID)

	meta, err := output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, meta.RunID)
	assert.Equal(t, 3, meta.LastGroup)
	assert.Equal(t, 5, meta.NextInputIndex)
	assert.Equal(t, 4, meta.TotalSuccessful)
	assert.Equal(t, 1, meta.TotalFailed)
	assert.Equal(t, "group_0002_failures.csv", meta.Groups[1].FailuresFile)

	env.store.AssertNumberOfCalls(t, "UpsertProperties", 3)

	reloaded := progress.NewTracker(filepath.Join(env.dir, "progress_cache.json"), env.logger)
	assert.Equal(t, 4, reloaded.Len())
	assert.True(t, reloaded.ShouldSkip(models.Identifier{PropertyID: "1"}))
	assert.False(t, reloaded.ShouldSkip(models.Identifier{PropertyID: "3"}))
}

func TestBatchProcessor_Resume(t *testing.T) {
	env := newTestEnv(t, 2)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)
	items := testItems(5)

	prev := output.NewMetadata("sig", 2)
	prev.Record(output.GroupInfo{Group: 1, Count: 2, InputStart: 0, InputEnd: 2, Timestamp: time.Now().UTC()})
	require.NoError(t, prev.Save(env.writer.MetadataPath()))

	summary, err := env.processor().Run(context.Background(), items, RunOptions{Resume: true, InputSignature: "sig"})
	require.NoError(t, err)

	assert.Equal(t, prev.RunID, summary.RunID)
	assert.Equal(t, 3, summary.Successful)
	env.fetcher.AssertNumberOfCalls(t, "Fetch", 3)
	env.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, items[0].URL)
	env.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, items[1].URL)

	assert.NoFileExists(t, filepath.Join(env.dir, "group_0001.parquet"))
	assert.FileExists(t, filepath.Join(env.dir, "group_0002.parquet"))
	assert.FileExists(t, filepath.Join(env.dir, "group_0003.parquet"))

	meta, err := output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, 3, meta.LastGroup)
	assert.Equal(t, 5, meta.TotalSuccessful)
}

func TestBatchProcessor_ResumeWithoutMetadataStartsFresh(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)

	summary, err := env.processor().Run(context.Background(), testItems(2), RunOptions{Resume: true, InputSignature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.FileExists(t, filepath.Join(env.dir, "group_0001.parquet"))
}

func TestBatchProcessor_ResumeRejectsOtherInput(t *testing.T) {
	env := newTestEnv(t, 2)
	require.NoError(t, output.NewMetadata("other.csv", 2).Save(env.writer.MetadataPath()))

	_, err := env.processor().Run(context.Background(), testItems(2), RunOptions{Resume: true, InputSignature: "sig"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunHadFailures)
	env.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestBatchProcessor_CorruptMetadataIsFatal(t *testing.T) {
	env := newTestEnv(t, 2)
	require.NoError(t, os.WriteFile(env.writer.MetadataPath(), []byte("{"), 0644))

	_, err := env.processor().Run(context.Background(), testItems(2), RunOptions{Resume: true, InputSignature: "sig"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--no-resume")
}

func TestBatchProcessor_NoResumeStartsOver(t *testing.T) {
	env := newTestEnv(t, 2)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)

	prev := output.NewMetadata("sig", 2)
	prev.Record(output.GroupInfo{Group: 1, Count: 2, InputEnd: 2, Timestamp: time.Now().UTC()})
	require.NoError(t, prev.Save(env.writer.MetadataPath()))

	summary, err := env.processor().Run(context.Background(), testItems(2), RunOptions{InputSignature: "sig"})
	require.NoError(t, err)
	assert.NotEqual(t, prev.RunID, summary.RunID)
	env.fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestBatchProcessor_FreshRunRemovesPreviousGroupFiles(t *testing.T) {
	env := newTestEnv(t, 2)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)

	_, err := env.processor().Run(context.Background(), testItems(4), RunOptions{InputSignature: "first"})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(env.dir, "group_0002.parquet"))

	env.extractor.fail["1"] = true
	env.extractor.fail["2"] = true
	env.tracker = nil
	_, err = env.processor().Run(context.Background(), testItems(2), RunOptions{InputSignature: "second"})
	require.ErrorIs(t, err, ErrRunHadFailures)

	assert.NoFileExists(t, filepath.Join(env.dir, "group_0001.parquet"))
	assert.NoFileExists(t, filepath.Join(env.dir, "group_0002.parquet"))
	assert.FileExists(t, filepath.Join(env.dir, "group_0001_failures.csv"))

	meta, err := output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	require.Len(t, meta.Groups, 1)
	assert.Empty(t, meta.Groups[0].File)
	assert.Equal(t, 0, meta.TotalSuccessful)
}

func TestBatchProcessor_RecommittedGroupReplacesStaleFiles(t *testing.T) {
	env := newTestEnv(t, 2)
	env.serveAll()
	items := testItems(4)

	prev := output.NewMetadata("sig", 2)
	prev.Record(output.GroupInfo{Group: 1, Count: 2, InputEnd: 2, Timestamp: time.Now().UTC()})
	require.NoError(t, prev.Save(env.writer.MetadataPath()))

	// Group 2 was written by an attempt that crashed before its metadata save.
	_, _, err := env.writer.WriteGroup(2, []*models.Property{{
		PropertyID: "3",
		Kind:       models.KindSold,
		URL:        items[2].URL,
		ScrapedAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	env.extractor.fail["3"] = true
	env.extractor.fail["4"] = true
	_, err = env.processor().Run(context.Background(), items, RunOptions{Resume: true, InputSignature: "sig"})
	require.ErrorIs(t, err, ErrRunHadFailures)

	assert.NoFileExists(t, filepath.Join(env.dir, "group_0002.parquet"))
	assert.FileExists(t, filepath.Join(env.dir, "group_0002_failures.csv"))
	env.store.AssertNotCalled(t, "UpsertProperties", mock.Anything, mock.Anything)
}

func TestBatchProcessor_SkipsProcessed(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)
	items := testItems(3)

	env.tracker.RecordSuccess(items[0])
	require.NoError(t, env.tracker.Save())

	summary, err := env.processor().Run(context.Background(), items, RunOptions{InputSignature: "sig"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Processed)
	env.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, items[0].URL)

	meta, err := output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Groups[0].Skipped)
}

func TestBatchProcessor_RecoversFromPanic(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)
	env.extractor.panics["2"] = true

	summary, err := env.processor().Run(context.Background(), testItems(3), RunOptions{InputSignature: "sig"})
	require.ErrorIs(t, err, ErrRunHadFailures)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
}

func TestBatchProcessor_FetchFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, 10)
	items := testItems(2)
	env.fetcher.On("Fetch", mock.Anything, items[0].URL).Return(nil, errors.New("navigation timeout"))
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)

	summary, err := env.processor().Run(context.Background(), items, RunOptions{InputSignature: "sig"})
	require.ErrorIs(t, err, ErrRunHadFailures)
	assert.Equal(t, 1, summary.Failed)

	data, err := os.ReadFile(filepath.Join(env.dir, "group_0001_failures.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "navigation timeout")
}

func TestBatchProcessor_CancelFlushesPartialGroup(t *testing.T) {
	env := newTestEnv(t, 3)
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil)
	items := testItems(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.fetcher.On("Fetch", mock.Anything, items[1].URL).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()
	env.serveAll()

	summary, err := env.processor().Run(ctx, items, RunOptions{InputSignature: "sig"})
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.Failed)

	meta, err := output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.LastGroup)
	assert.Equal(t, 1, meta.NextInputIndex)
	assert.Equal(t, 1, env.tracker.Len())

	summary, err = env.processor().Run(context.Background(), items, RunOptions{Resume: true, InputSignature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Successful)
	assert.False(t, summary.Interrupted)

	meta, err = output.LoadMetadata(env.writer.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, 3, meta.LastGroup)
	assert.Equal(t, 5, meta.NextInputIndex)
	assert.Equal(t, 5, meta.TotalSuccessful)
}

func TestBatchProcessor_StoreRetry(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(sqlite3.Error{Code: sqlite3.ErrBusy}).Once()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := env.processor().Run(context.Background(), testItems(2), RunOptions{InputSignature: "sig"})
	require.NoError(t, err)
	env.store.AssertNumberOfCalls(t, "UpsertProperties", 2)
}

func TestBatchProcessor_StoreFailureIsFatal(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(errors.New("disk I/O error"))

	_, err := env.processor().Run(context.Background(), testItems(2), RunOptions{InputSignature: "sig"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunHadFailures)
	env.store.AssertNumberOfCalls(t, "UpsertProperties", 1)

	_, err = output.LoadMetadata(env.writer.MetadataPath())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, env.tracker.Len())
}

func TestBatchProcessor_StoreRetriesExhausted(t *testing.T) {
	env := newTestEnv(t, 10)
	env.serveAll()
	env.store.On("UpsertProperties", mock.Anything, mock.Anything).Return(sqlite3.Error{Code: sqlite3.ErrLocked})

	_, err := env.processor().Run(context.Background(), testItems(1), RunOptions{InputSignature: "sig"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	env.store.AssertNumberOfCalls(t, "UpsertProperties", 4)
}

func TestBatchProcessor_InvalidGroupSize(t *testing.T) {
	env := newTestEnv(t, 0)
	_, err := env.processor().Run(context.Background(), testItems(1), RunOptions{})
	assert.Error(t, err)
}
