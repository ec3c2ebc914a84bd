// Package importer bulk-registers feeds from a CSV file. Each URL is
// validated by fetching it before it is persisted, the same path a
// single add takes.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"feedsync/internal/process"
	"feedsync/internal/store"
)

// Summary reports the outcome of one import run. Errors holds one
// message per failed CSV line.
type Summary struct {
	Imported int
	Errors   []string
}

// Importer drives the feed import process.
type Importer struct {
	syncer *process.Syncer
}

// New creates an Importer adding feeds through syncer.
func New(syncer *process.Syncer) *Importer {
	return &Importer{syncer: syncer}
}

// ImportFeeds reads a CSV file with a required "url" column and adds
// every feed in it. Per-line failures (unreachable sources, duplicate
// URLs, malformed rows) are collected in the returned Summary and do
// not abort the import.
func (i *Importer) ImportFeeds(ctx context.Context, csvPath string) (*Summary, error) {
	log.Info().Str("csv", csvPath).Msg("Starting feed import")

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	urlIdx := findColumnIndex(header, "url")
	if urlIdx < 0 {
		return nil, fmt.Errorf("required column 'url' not found in CSV header")
	}

	lineCount := 1 // Header was already read
	successCount := 0
	var lineErrors []string

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			lineErrors = append(lineErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		url := ""
		if urlIdx < len(record) {
			url = strings.TrimSpace(record[urlIdx])
		}
		if url == "" {
			continue
		}

		feed, err := i.syncer.AddFeed(ctx, url)
		if err != nil {
			if errors.Is(err, store.ErrFeedExists) {
				log.Warn().Int("line", lineCount).Str("url", url).Msg("Duplicate URL")
				lineErrors = append(lineErrors, fmt.Sprintf("line %d: duplicate URL: %s", lineCount, url))
			} else {
				log.Error().Err(err).Int("line", lineCount).Str("url", url).Msg("Failed to add feed")
				lineErrors = append(lineErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			}
			continue
		}

		successCount++
		log.Debug().Int("line", lineCount).Str("url", url).Str("title", feed.DisplayTitle()).Msg("Feed added")
	}

	log.Info().
		Int("total", lineCount-1).
		Int("success", successCount).
		Int("errors", len(lineErrors)).
		Msg("Import summary")

	return &Summary{Imported: successCount, Errors: lineErrors}, nil
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}
