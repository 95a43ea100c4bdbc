package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

type namedWriter struct {
	format string
	OutputWriter
}

// DualWriter fans every batch out to a CSV and a JSON file.
type DualWriter struct {
	mu      sync.Mutex
	outputs []namedWriter
}

// NewDualWriter opens both files. The CSV file is closed again if the JSON
// file cannot be created.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}
	return &DualWriter{outputs: []namedWriter{
		{format: "csv", OutputWriter: csvWriter},
		{format: "json", OutputWriter: jsonWriter},
	}}, nil
}

// Write stops at the first output that fails.
func (dw *DualWriter) Write(records []*models.ProductRecord) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	for _, out := range dw.outputs {
		if err := out.Write(records); err != nil {
			return fmt.Errorf("%s write: %w", out.format, err)
		}
	}
	return nil
}

// Close closes every output and joins their errors.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("close", OutputWriter.Close)
}

// Validate checks every output file.
func (dw *DualWriter) Validate() error {
	return dw.each("validation", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, out := range dw.outputs {
		if err := fn(out.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", out.format, op, err))
		}
	}
	return errors.Join(errs...)
}

// NewWriter builds the writer for format: json, csv or dual. For dual, the
// CSV and JSON files share filename's stem.
func NewWriter(format, filename string) (OutputWriter, error) {
	var (
		writer OutputWriter
		err    error
	)
	switch strings.ToLower(format) {
	case "", "json":
		writer, err = NewJSONWriter(filename)
	case "csv":
		writer, err = NewCSVWriter(filename)
	case "dual":
		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		writer, err = NewDualWriter(stem+".csv", stem+".json")
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return writer, nil
}
