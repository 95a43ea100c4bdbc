package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var csvHeader = []string{"id", "name", "price", "currency", "availability", "description", "attributes", "url", "region"}

// CSVWriter writes records to CSV. Attributes are encoded as a JSON object.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []*models.ProductRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, r := range records {
		attributes, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes for %s: %w", r.ID, err)
		}
		if r.Attributes == nil {
			attributes = []byte("{}")
		}
		row := []string{
			r.ID,
			r.Name,
			r.Price.Amount.String(),
			r.Price.Currency,
			string(r.Availability),
			r.Description,
			string(attributes),
			r.URL,
			r.Region,
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file exists and holds at least the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.path)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter streams records as one JSON array into a temporary file next
// to the target and renames it into place on Close, so the target never
// holds a partial array.
type JSONWriter struct {
	path    string
	tmp     *os.File
	writer  *bufio.Writer
	written int
	closed  bool
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(tmp)
	if _, err := buffer.WriteString("["); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write json header: %w", err)
	}
	return &JSONWriter{
		path:   filename,
		tmp:    tmp,
		writer: buffer,
	}, nil
}

// Write appends records to the array.
func (jw *JSONWriter) Write(records []*models.ProductRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrPipelineClosed
	}
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		sep := ",\n  "
		if jw.written == 0 {
			sep = "\n  "
		}
		if _, err := jw.writer.WriteString(sep); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		if _, err := jw.writer.Write(data); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		jw.written++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close terminates the array and moves the file into place.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return nil
	}
	jw.closed = true

	tail := "]\n"
	if jw.written > 0 {
		tail = "\n]\n"
	}
	if _, err := jw.writer.WriteString(tail); err != nil {
		jw.discard()
		return fmt.Errorf("write json footer: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		jw.discard()
		return fmt.Errorf("flush json writer: %w", err)
	}
	if err := jw.tmp.Chmod(0o644); err != nil {
		jw.discard()
		return fmt.Errorf("set json file mode: %w", err)
	}
	if err := jw.tmp.Close(); err != nil {
		os.Remove(jw.tmp.Name())
		return fmt.Errorf("close json file: %w", err)
	}
	if err := os.Rename(jw.tmp.Name(), jw.path); err != nil {
		os.Remove(jw.tmp.Name())
		return fmt.Errorf("move json file into place: %w", err)
	}
	return nil
}

func (jw *JSONWriter) discard() {
	jw.tmp.Close()
	os.Remove(jw.tmp.Name())
}

// Validate ensures the JSON file is in place and holds data.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.path)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
