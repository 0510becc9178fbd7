package processor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"malmohomes/collector/internal/extract"
	"malmohomes/collector/internal/models"
)

// ReadInput loads listing identifiers from a CSV file with a url column and an
// optional property_id column. offset skips data rows; limit 0 reads the rest.
func ReadInput(path string, offset, limit int) ([]models.Identifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read input header: %w", err)
	}
	urlCol, idCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url":
			urlCol = i
		case "property_id":
			idCol = i
		}
	}
	if urlCol < 0 {
		return nil, errors.New("input file has no url column")
	}

	var items []models.Identifier
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input row %d: %w", row+1, err)
		}
		row++
		if row <= offset {
			continue
		}
		if limit > 0 && len(items) >= limit {
			break
		}

		id := models.Identifier{URL: strings.TrimSpace(field(record, urlCol))}
		if id.URL == "" {
			continue
		}
		id.PropertyID = strings.TrimSpace(field(record, idCol))
		if id.PropertyID == "" {
			id.PropertyID = extract.PropertyIDFromURL(id.URL)
		}
		items = append(items, id)
	}

	return items, nil
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

// InputSignature identifies the input slice a run was started for. Resuming
// requires the same signature.
func InputSignature(path string, offset, limit, groupSize int) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("%s|offset=%d|limit=%d|group_size=%d", path, offset, limit, groupSize)
}
