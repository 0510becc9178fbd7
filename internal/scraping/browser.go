package scraping

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/config"
	"malmohomes/collector/internal/models"
)

// ErrChallenge means the site served a bot challenge instead of the listing.
var ErrChallenge = errors.New("bot challenge page served")

// PageFetcher renders one listing page and reports the requests it issued.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*models.Page, error)
	Close() error
}

// BrowserFetcher drives a single Chrome instance, one tab per page.
type BrowserFetcher struct {
	cfg     config.BrowserConfig
	markers []string
	logger  *logrus.Logger

	browserCtx   context.Context
	cancelAlloc  context.CancelFunc
	cancelBrowse context.CancelFunc
	closeOnce    sync.Once
}

func NewBrowserFetcher(cfg config.BrowserConfig, challengeMarkers []string, logger *logrus.Logger) (*BrowserFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", cfg.Locale),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowse := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome fails the run up front.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowse()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"headless": cfg.Headless,
		"locale":   cfg.Locale,
		"timezone": cfg.Timezone,
	}).Info("Browser started")

	return &BrowserFetcher{
		cfg:          cfg,
		markers:      challengeMarkers,
		logger:       logger,
		browserCtx:   browserCtx,
		cancelAlloc:  cancelAlloc,
		cancelBrowse: cancelBrowse,
	}, nil
}

// Fetch opens url in a fresh tab and returns the rendered markup together with
// every request the page made while loading.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*models.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	runCtx, cancel := context.WithTimeout(tabCtx, b.cfg.PageTimeout+b.cfg.ChallengeWait)
	defer cancel()

	recorder := &callRecorder{}
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Request != nil {
			recorder.record(e.Request)
		}
	})

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": b.cfg.Locale}),
		emulation.SetTimezoneOverride(b.cfg.Timezone),
		emulation.SetLocaleOverride().WithLocale(strings.ReplaceAll(b.cfg.Locale, "-", "_")),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}

	if isChallenge(html, b.markers) {
		html, err = b.awaitChallenge(runCtx, url)
		if err != nil {
			return nil, err
		}
	}

	return &models.Page{
		URL:       url,
		HTML:      html,
		Calls:     recorder.snapshot(),
		FetchedAt: time.Now(),
	}, nil
}

// awaitChallenge gives a human the chance to clear a challenge in a headed
// browser. Headless runs fail immediately.
func (b *BrowserFetcher) awaitChallenge(ctx context.Context, url string) (string, error) {
	if b.cfg.Headless {
		return "", fmt.Errorf("%s: %w", url, ErrChallenge)
	}

	b.logger.WithFields(logrus.Fields{
		"url":  url,
		"wait": b.cfg.ChallengeWait,
	}).Warn("Challenge page detected, waiting for it to clear")

	deadline := time.Now().Add(b.cfg.ChallengeWait)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var html string
		if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("failed to poll challenge page: %w", err)
		}
		if !isChallenge(html, b.markers) {
			if err := chromedp.Run(ctx,
				chromedp.Sleep(b.cfg.SettleDelay),
				chromedp.OuterHTML("html", &html, chromedp.ByQuery),
			); err != nil {
				return "", fmt.Errorf("failed to render %s after challenge: %w", url, err)
			}
			b.logger.WithField("url", url).Info("Challenge cleared")
			return html, nil
		}
	}

	return "", fmt.Errorf("%s: %w", url, ErrChallenge)
}

func (b *BrowserFetcher) Close() error {
	b.closeOnce.Do(func() {
		b.cancelBrowse()
		b.cancelAlloc()
		b.logger.Info("Browser closed")
	})
	return nil
}

func isChallenge(html string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(html, m) {
			return true
		}
	}
	return false
}

// callRecorder collects the requests of one page load. Events arrive on the
// browser's event goroutine.
type callRecorder struct {
	mu    sync.Mutex
	calls []models.NetworkCall
}

func (r *callRecorder) record(req *network.Request) {
	call := models.NetworkCall{
		URL:    req.URL,
		Method: req.Method,
		Body:   postBody(req.PostDataEntries),
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *callRecorder) snapshot() []models.NetworkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NetworkCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func postBody(entries []*network.PostDataEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		if e == nil {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(e.Bytes); err == nil {
			sb.Write(decoded)
		} else {
			sb.WriteString(e.Bytes)
		}
	}
	return sb.String()
}
