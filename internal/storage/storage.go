package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/ever-scraper/internal/models"
)

const DateLayout = "20060102"

var (
	ErrNoRecords     = errors.New("no records to write")
	ErrEmptyCategory = errors.New("category name is required")
)

var csvHeader = []string{"product_category", "product_name", "price", "created_time"}

// Store lays artifacts out as <root>/<YYYYMMDD>/<Category>_<YYYYMMDD>.csv.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) RunDir(date time.Time) string {
	return filepath.Join(s.root, date.Format(DateLayout))
}

func (s *Store) EnsureRunDir(date time.Time) (string, error) {
	dir := s.RunDir(date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory %q: %w", dir, err)
	}
	return dir, nil
}

// List returns the regular file names in dir. A missing directory is empty.
func (s *Store) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func ArtifactName(category string, date time.Time) string {
	safe := strings.NewReplacer("/", "-", `\`, "-").Replace(strings.TrimSpace(category))
	return fmt.Sprintf("%s_%s.csv", safe, date.Format(DateLayout))
}

// WriteArtifact writes one category's records and returns the artifact path.
func (s *Store) WriteArtifact(dir, category string, date time.Time, records []models.ProductRecord) (string, error) {
	if strings.TrimSpace(category) == "" {
		return "", ErrEmptyCategory
	}
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, ArtifactName(category, date))

	// Write to temp file first for atomicity
	tmpFile := path + ".tmp"
	if err := writeCSV(tmpFile, records); err != nil {
		os.Remove(tmpFile)
		return "", err
	}

	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	return path, nil
}

func writeCSV(filename string, records []models.ProductRecord) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.Category,
			record.Name,
			record.Price,
			record.CapturedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}

	return f.Sync()
}

// CSVExporter writes artifacts for a fixed run directory and date.
type CSVExporter struct {
	store *Store
	dir   string
	date  time.Time
}

func NewCSVExporter(store *Store, dir string, date time.Time) *CSVExporter {
	return &CSVExporter{store: store, dir: dir, date: date}
}

func (e *CSVExporter) Export(_ context.Context, category string, records []models.ProductRecord) (string, error) {
	return e.store.WriteArtifact(e.dir, category, e.date, records)
}
