package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/internal/models"
)

// Failure is one input row that did not produce a record.
type Failure struct {
	URL        string
	PropertyID string
	Error      string
}

// Writer persists group files into one output directory.
type Writer struct {
	dir    string
	logger *logrus.Logger
}

func NewWriter(dir string, logger *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) MetadataPath() string {
	return filepath.Join(w.dir, MetadataFileName)
}

func GroupFileName(group int) string {
	return fmt.Sprintf("group_%04d.parquet", group)
}

func FailuresFileName(group int) string {
	return fmt.Sprintf("group_%04d_failures.csv", group)
}

// WriteGroup writes the records of one group and returns the file name and its
// size in kilobytes.
func (w *Writer) WriteGroup(group int, props []*models.Property) (string, float64, error) {
	rows := make([]Row, len(props))
	for i, p := range props {
		rows[i] = RowFromProperty(p)
	}

	name := GroupFileName(group)
	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("failed to write group %d: %w", group, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", 0, fmt.Errorf("failed to finalize group %d: %w", group, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat group %d: %w", group, err)
	}
	sizeKB := float64(info.Size()) / 1024

	w.logger.WithFields(logrus.Fields{
		"group":   group,
		"file":    name,
		"records": len(rows),
		"size_kb": fmt.Sprintf("%.1f", sizeKB),
	}).Info("Wrote group file")

	return name, sizeKB, nil
}

// WriteFailures writes the retry list for one group.
func (w *Writer) WriteFailures(group int, failures []Failure) (string, error) {
	name := FailuresFileName(group)
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create failures file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"url", "property_id", "error"}); err != nil {
		return "", fmt.Errorf("failed to write failures header: %w", err)
	}
	for _, fl := range failures {
		if err := cw.Write([]string{fl.URL, fl.PropertyID, fl.Error}); err != nil {
			return "", fmt.Errorf("failed to write failure row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush failures file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync failures file: %w", err)
	}
	return name, nil
}

// RemoveGroupFile deletes the record file of a group slot, if any.
func (w *Writer) RemoveGroupFile(group int) error {
	return w.remove(GroupFileName(group))
}

// RemoveFailuresFile deletes the failures file of a group slot, if any.
func (w *Writer) RemoveFailuresFile(group int) error {
	return w.remove(FailuresFileName(group))
}

// ClearGroups deletes every group file in the directory, including leftovers
// of interrupted writes. Metadata, the progress cache and the database are kept.
func (w *Writer) ClearGroups() error {
	var removed int
	for _, pattern := range []string{"group_*.parquet", "group_*_failures.csv", "group_*.parquet.tmp"} {
		matches, err := filepath.Glob(filepath.Join(w.dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to list group files: %w", err)
		}
		for _, path := range matches {
			if err := w.remove(filepath.Base(path)); err != nil {
				return err
			}
			removed++
		}
	}
	if removed > 0 {
		w.logger.WithField("files", removed).Info("Removed group files of previous run")
	}
	return nil
}

func (w *Writer) remove(name string) error {
	err := os.Remove(filepath.Join(w.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// ReadGroup loads the records stored in a group file.
func ReadGroup(path string) ([]*models.Property, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read group file %s: %w", path, err)
	}
	props := make([]*models.Property, 0, len(rows))
	for _, r := range rows {
		p, err := r.Property()
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}
