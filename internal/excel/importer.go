// Package excel imports phrase lists from xlsx files: one phrase per row,
// column A holds the text. Rows are deduplicated through the phrase store.
package excel

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/example/lingobot/pkg/models"
)

// PhraseStore is the slice of phrase persistence the importer needs.
type PhraseStore interface {
	GetOrCreate(ctx context.Context, text, sourceLang string) (*models.Phrase, bool, error)
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Created int
	Skipped int
	Errors  []string
}

// Importer loads phrase lists into the store.
type Importer struct {
	phrases PhraseStore
	logger  *logrus.Logger
}

// NewImporter creates an importer instance.
func NewImporter(phrases PhraseStore, logger *logrus.Logger) *Importer {
	return &Importer{phrases: phrases, logger: logger}
}

// Import reads the first sheet of the xlsx file at path and registers every
// non-empty row as a phrase in sourceLang. Existing phrases are counted as
// skipped; individual bad rows are reported, not fatal.
func (i *Importer) Import(ctx context.Context, path, sourceLang string) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	result := &ImportResult{}
	for idx, row := range rows {
		if len(row) == 0 {
			continue
		}
		text := strings.TrimSpace(row[0])
		if text == "" {
			continue
		}

		_, created, err := i.phrases.GetOrCreate(ctx, text, sourceLang)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%q): %v", idx+1, text, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	i.logger.WithFields(logrus.Fields{
		"path":    path,
		"created": result.Created,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	}).Info("imported phrase list")
	return result, nil
}
