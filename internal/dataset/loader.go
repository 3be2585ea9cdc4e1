package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"prescription-analytics-api/internal/models"
)

// Column names of the monthly summary extract
const (
	ColumnMonth    = "YEAR_MONTH"
	ColumnRegion   = "REGIONAL_OFFICE_NAME"
	ColumnCategory = "BNF_CHAPTER_PLUS_CODE"
	ColumnCost     = "TOTAL_COST"
)

// LoaderConfig controls where the dataset is read from
type LoaderConfig struct {
	Path            string `json:"path"`
	Sheet           string `json:"sheet"`
	FallbackEnabled bool   `json:"fallback_enabled"`
	Seed            int64  `json:"seed"`
}

// DefaultLoaderConfig reads monthly_summary.csv and falls back to synthetic data
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Path:            "monthly_summary.csv",
		FallbackEnabled: true,
		Seed:            DefaultSeed,
	}
}

// Loader reads prescription cost extracts
type Loader struct {
	config LoaderConfig
	logger *logrus.Logger
}

// NewLoader creates a new dataset loader
func NewLoader(config LoaderConfig, logger *logrus.Logger) *Loader {
	if config.Seed == 0 {
		config.Seed = DefaultSeed
	}
	return &Loader{
		config: config,
		logger: logger,
	}
}

// Load reads the configured file. A missing or unreadable file yields the
// synthetic dataset when the fallback is enabled.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := l.readFile(l.config.Path)
	if err != nil {
		if !l.config.FallbackEnabled {
			return nil, fmt.Errorf("failed to load dataset from %s: %w", l.config.Path, err)
		}

		l.logger.WithFields(logrus.Fields{
			"path":  l.config.Path,
			"error": err,
			"seed":  l.config.Seed,
		}).Warn("Dataset unavailable, using synthetic sample data")

		return GenerateSynthetic(l.config.Seed), nil
	}

	l.logger.WithFields(logrus.Fields{
		"path":         l.config.Path,
		"observations": ds.Len(),
		"dropped_rows": ds.DroppedRows,
		"duration":     time.Since(start),
	}).Info("Dataset loaded")

	return ds, nil
}

func (l *Loader) readFile(path string) (*Dataset, error) {
	if path == "" {
		return nil, errors.New("no dataset path configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return l.readXLSX(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f, path)
	}
}

func (l *Loader) readXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := l.config.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	return parseRows(rows[0], rows[1:], path)
}

// ReadCSV parses a delimited monthly summary extract
func ReadCSV(r io.Reader, source string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header row")
	}

	return parseRows(records[0], records[1:], source)
}

func parseRows(header []string, rows [][]string, source string) (*Dataset, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	required := []string{ColumnMonth, ColumnRegion, ColumnCategory, ColumnCost}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %s", name)
		}
	}

	monthIdx := columns[ColumnMonth]
	regionIdx := columns[ColumnRegion]
	categoryIdx := columns[ColumnCategory]
	costIdx := columns[ColumnCost]

	observations := make([]models.Observation, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		obs, ok := parseRow(row, monthIdx, regionIdx, categoryIdx, costIdx)
		if !ok {
			dropped++
			continue
		}
		observations = append(observations, obs)
	}

	ds := New(observations, ModeReal, source)
	ds.DroppedRows = dropped
	return ds, nil
}

func parseRow(row []string, monthIdx, regionIdx, categoryIdx, costIdx int) (models.Observation, bool) {
	get := func(idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	month, err := models.ParseMonth(get(monthIdx))
	if err != nil {
		return models.Observation{}, false
	}

	cost, err := strconv.ParseFloat(get(costIdx), 64)
	if err != nil || math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return models.Observation{}, false
	}

	return models.Observation{
		Month:    month,
		Region:   get(regionIdx),
		Category: get(categoryIdx),
		Cost:     cost,
	}, true
}
