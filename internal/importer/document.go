package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"product-catalog-migrator/internal/domain"
)

var (
	ErrFileNotFound    = errors.New("importer: file not found")
	ErrInvalidDocument = errors.New("importer: invalid JSON document")
	ErrNotAnArray      = errors.New("importer: JSON root must be an array")
	ErrRowNotObject    = errors.New("importer: row is not an object")
)

// Document is an import document: one raw JSON value per row, in file order.
type Document []json.RawMessage

// LoadDocument reads and parses the document at path.
func LoadDocument(path string) (Document, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path given", ErrFileNotFound)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("importer: read %s: %w", path, err)
	}
	return ParseDocument(data)
}

// ParseDocument parses a document held in memory.
func ParseDocument(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidDocument
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotAnArray
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// decodeRow decodes one row. It fails with ErrRowNotObject for values that are not
// objects.
func decodeRow(raw json.RawMessage) (domain.Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Row{}, ErrRowNotObject
	}
	var row domain.Row
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return domain.Row{}, fmt.Errorf("importer: decode row: %w", err)
	}
	return row, nil
}

// Rows decodes every object row of the document, skipping the others.
func (d Document) Rows() []domain.Row {
	rows := make([]domain.Row, 0, len(d))
	for _, raw := range d {
		if row, err := decodeRow(raw); err == nil {
			rows = append(rows, row)
		}
	}
	return rows
}
