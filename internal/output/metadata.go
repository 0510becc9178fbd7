package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"malmohomes/collector/internal/fsutil"
)

const MetadataFileName = "metadata.json"

// GroupInfo describes one committed group.
type GroupInfo struct {
	Group        int       `json:"group"`
	File         string    `json:"file,omitempty"`
	FailuresFile string    `json:"failures_file,omitempty"`
	Count        int       `json:"count"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	FileSizeKB   float64   `json:"file_size_kb"`
	InputStart   int       `json:"input_start"`
	InputEnd     int       `json:"input_end"`
	Timestamp    time.Time `json:"timestamp"`
}

// Metadata is the authoritative record of a run's progress. Resuming reads
// LastGroup and NextInputIndex from here.
type Metadata struct {
	RunID          string    `json:"run_id"`
	InputSignature string    `json:"input_signature"`
	GroupSize      int       `json:"group_size"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Groups []GroupInfo `json:"groups"`

	TotalProcessed  int `json:"total_processed"`
	TotalSuccessful int `json:"total_successful"`
	TotalFailed     int `json:"total_failed"`
	TotalSkipped    int `json:"total_skipped"`

	LastGroup      int `json:"last_group"`
	NextInputIndex int `json:"next_input_index"`
}

func NewMetadata(inputSignature string, groupSize int) *Metadata {
	now := time.Now().UTC()
	return &Metadata{
		RunID:          uuid.NewString(),
		InputSignature: inputSignature,
		GroupSize:      groupSize,
		CreatedAt:      now,
		UpdatedAt:      now,
		Groups:         []GroupInfo{},
	}
}

// LoadMetadata reads run metadata. A missing file is reported with an error
// matching os.ErrNotExist.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata %s: %w", path, err)
	}
	return &m, nil
}

func (m *Metadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save run metadata: %w", err)
	}
	return nil
}

// Record adds a committed group and advances the resume point past it.
func (m *Metadata) Record(info GroupInfo) {
	m.Groups = append(m.Groups, info)
	m.TotalProcessed += info.Count + info.Failed
	m.TotalSuccessful += info.Count
	m.TotalFailed += info.Failed
	m.TotalSkipped += info.Skipped
	m.LastGroup = info.Group
	m.NextInputIndex = info.InputEnd
	m.UpdatedAt = info.Timestamp
}

// SuccessRate is the share of processed rows that produced a record, in percent.
func (m *Metadata) SuccessRate() float64 {
	if m.TotalProcessed == 0 {
		return 0
	}
	return float64(m.TotalSuccessful) / float64(m.TotalProcessed) * 100
}
