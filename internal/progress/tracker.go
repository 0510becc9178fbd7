package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"malmohomes/collector/internal/fsutil"
	"malmohomes/collector/internal/models"
)

const fileVersion = 1

type cacheFile struct {
	Version     int      `json:"version"`
	Identifiers []string `json:"identifiers"`
}

// Tracker remembers which listings were already extracted, by fingerprint.
// It is a best-effort skip list: losing it only causes re-extraction.
type Tracker struct {
	path   string
	logger *logrus.Logger

	mu    sync.Mutex
	seen  map[string]struct{}
	dirty bool
}

// NewTracker loads the fingerprint set at path. A missing or unreadable file
// starts an empty set.
func NewTracker(path string, logger *logrus.Logger) *Tracker {
	t := &Tracker{
		path:   path,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.WithError(err).WithField("path", t.path).Warn("Could not read progress cache, starting empty")
		}
		return
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.logger.WithError(err).WithField("path", t.path).Warn("Progress cache is corrupt, starting empty")
		return
	}

	for _, fp := range file.Identifiers {
		t.seen[fp] = struct{}{}
	}
	t.logger.WithFields(logrus.Fields{
		"path":    t.path,
		"entries": len(t.seen),
	}).Info("Loaded progress cache")
}

// Fingerprint hashes an identity so raw ids never reach disk.
func Fingerprint(id models.Identifier) string {
	sum := sha256.Sum256([]byte(id.Key()))
	return hex.EncodeToString(sum[:])
}

func (t *Tracker) ShouldSkip(id models.Identifier) bool {
	if id.Key() == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[Fingerprint(id)]
	return ok
}

func (t *Tracker) RecordSuccess(id models.Identifier) {
	if id.Key() == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fp := Fingerprint(id)
	if _, ok := t.seen[fp]; ok {
		return
	}
	t.seen[fp] = struct{}{}
	t.dirty = true
}

// Save rewrites the cache file if anything changed since the last save.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty {
		return nil
	}

	file := cacheFile{Version: fileVersion, Identifiers: make([]string, 0, len(t.seen))}
	for fp := range t.seen {
		file.Identifiers = append(file.Identifiers, fp)
	}
	sort.Strings(file.Identifiers)

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal progress cache: %w", err)
	}
	if err := fsutil.WriteFileAtomic(t.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save progress cache: %w", err)
	}

	t.dirty = false
	return nil
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
