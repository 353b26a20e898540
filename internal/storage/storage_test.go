package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runDate = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func sampleRecords() []models.ProductRecord {
	return []models.ProductRecord{
		{Category: "Beverages", Name: "Cola 1L", Price: "45.50", CapturedAt: runDate},
		{Category: "Beverages", Name: "Iced Tea, Lemon", Price: "80.00", CapturedAt: runDate},
	}
}

func TestRunDir(t *testing.T) {
	s := NewStore("csv")

	assert.Equal(t, filepath.Join("csv", "20261015"), s.RunDir(runDate))
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		category string
		expected string
	}{
		{"Beverages", "Beverages_20261015.csv"},
		{"Fruits & Vegetables", "Fruits & Vegetables_20261015.csv"},
		{"Wines/Liquor", "Wines-Liquor_20261015.csv"},
		{"  Snacks ", "Snacks_20261015.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.expected, ArtifactName(tt.category, runDate))
		})
	}
}

func TestWriteArtifact(t *testing.T) {
	s := NewStore(t.TempDir())
	dir, err := s.EnsureRunDir(runDate)
	require.NoError(t, err)

	path, err := s.WriteArtifact(dir, "Beverages", runDate, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Beverages_20261015.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"product_category", "product_name", "price", "created_time"}, rows[0])
	assert.Equal(t, []string{"Beverages", "Iced Tea, Lemon", "80.00", "2026-10-15T09:30:00Z"}, rows[2])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteArtifactRejectsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	dir := s.RunDir(runDate)

	_, err := s.WriteArtifact(dir, "Beverages", runDate, nil)
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = s.WriteArtifact(dir, " ", runDate, sampleRecords())
	assert.ErrorIs(t, err, ErrEmptyCategory)

	names, err := s.List(dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestList(t *testing.T) {
	s := NewStore(t.TempDir())

	names, err := s.List(filepath.Join(s.Root(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)

	dir, err := s.EnsureRunDir(runDate)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
	_, err = s.WriteArtifact(dir, "Snacks", runDate, sampleRecords())
	require.NoError(t, err)

	names, err = s.List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Snacks_20261015.csv"}, names)
}

func TestCSVExporter(t *testing.T) {
	s := NewStore(t.TempDir())
	dir := s.RunDir(runDate)
	exp := NewCSVExporter(s, dir, runDate)

	path, err := exp.Export(context.Background(), "Dairy", sampleRecords())
	require.NoError(t, err)
	assert.FileExists(t, path)
}
