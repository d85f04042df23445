// Package storage records finished stabilization runs on disk.
//
// Each run gets a directory holding metadata.json and iterations.csv.
// Recordings are telemetry only; nothing is read back into a session.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/wfslock/internal/modal"
)

const (
	metadataFile   = "metadata.json"
	iterationsFile = "iterations.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID              string             `json:"id"`
	Preset          string             `json:"preset"`
	Timestamp       time.Time          `json:"timestamp"`
	Seed            int64              `json:"seed"`
	Tolerance       float64            `json:"tolerance"`
	EscalationLimit int                `json:"escalation_limit"`
	ResetOnContinue bool               `json:"reset_on_continue"`
	Iterations      int                `json:"iterations"`
	Targets         int                `json:"targets"`
	Convergences    int                `json:"convergences"`
	Escalations     int                `json:"escalations"`
	Outcome         string             `json:"outcome"`
	Metrics         map[string]float64 `json:"metrics"`
}

// Iteration is one row of iterations.csv.
type Iteration struct {
	Iteration  int           `json:"iteration"`
	Generation uint64        `json:"generation"`
	Stable     bool          `json:"stable"`
	Converged  bool          `json:"converged"`
	Escalated  bool          `json:"escalated"`
	Counter    int           `json:"counter"`
	RMS        float64       `json:"rms"`
	MaxAbs     float64       `json:"max_abs"`
	Derived    modal.Derived `json:"derived"`
}

// Save writes a run and returns its id. An empty meta.ID is filled from the
// preset name and the current time.
func (s *Store) Save(meta RunMetadata, rows []Iteration) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		preset := meta.Preset
		if preset == "" {
			preset = "run"
		}
		meta.ID = fmt.Sprintf("%s_%d", preset, meta.Timestamp.UnixNano())
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, iterationsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	header := []string{"iteration", "generation", "stable", "converged", "escalated", "counter", "rms", "max_abs"}
	for i := 0; i < modal.DerivedModes; i++ {
		header = append(header, fmt.Sprintf("z%d", i+modal.FirstDerivedMode))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, r := range rows {
		row := []string{
			strconv.Itoa(r.Iteration),
			strconv.FormatUint(r.Generation, 10),
			strconv.FormatBool(r.Stable),
			strconv.FormatBool(r.Converged),
			strconv.FormatBool(r.Escalated),
			strconv.Itoa(r.Counter),
			strconv.FormatFloat(r.RMS, 'g', -1, 64),
			strconv.FormatFloat(r.MaxAbs, 'g', -1, 64),
		}
		for _, val := range r.Derived {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: decode %s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadIterations reads back the rows of a run. Malformed rows are skipped.
func (s *Store) LoadIterations(runID string) ([]Iteration, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, iterationsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Iteration{}, nil
	}

	rows := make([]Iteration, 0, len(records)-1)
	for _, record := range records[1:] {
		row, err := parseRow(record)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(record []string) (Iteration, error) {
	var row Iteration
	if len(record) != 8+modal.DerivedModes {
		return row, fmt.Errorf("storage: expected %d fields, got %d", 8+modal.DerivedModes, len(record))
	}
	var err error
	if row.Iteration, err = strconv.Atoi(record[0]); err != nil {
		return row, err
	}
	if row.Generation, err = strconv.ParseUint(record[1], 10, 64); err != nil {
		return row, err
	}
	if row.Stable, err = strconv.ParseBool(record[2]); err != nil {
		return row, err
	}
	if row.Converged, err = strconv.ParseBool(record[3]); err != nil {
		return row, err
	}
	if row.Escalated, err = strconv.ParseBool(record[4]); err != nil {
		return row, err
	}
	if row.Counter, err = strconv.Atoi(record[5]); err != nil {
		return row, err
	}
	if row.RMS, err = strconv.ParseFloat(record[6], 64); err != nil {
		return row, err
	}
	if row.MaxAbs, err = strconv.ParseFloat(record[7], 64); err != nil {
		return row, err
	}
	for i := range row.Derived {
		if row.Derived[i], err = strconv.ParseFloat(record[8+i], 64); err != nil {
			return row, err
		}
	}
	return row, nil
}

// ExportData is a run in one JSON document.
type ExportData struct {
	Metadata   RunMetadata `json:"metadata"`
	Iterations []Iteration `json:"iterations"`
}

// Export writes a recorded run to w as indented JSON.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	rows, err := s.LoadIterations(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Metadata: *meta, Iterations: rows})
}
