// Package pipeline validates finished product records and writes them to the
// configured output.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Emit is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when the writer does not finish
	// closing within the drain timeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.ProductRecord) error
	Close() error
	Validate() error
}

// Pipeline re-validates records, drops repeated identifiers and writes the
// rest to the output in batches.
type Pipeline struct {
	writer    OutputWriter
	batchSize int

	seen    map[string]struct{}
	metrics metrics

	mu     sync.Mutex
	closed bool
	err    error
}

// NewPipeline builds a pipeline writing to writer in cfg.BatchSize batches.
func NewPipeline(writer OutputWriter, cfg *config.Config) *Pipeline {
	batchSize := 64
	if cfg != nil && cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
	}
}

// Emit writes records in order. Invalid records and repeated identifiers are
// counted and skipped. A write failure is sticky: later calls return it.
func (p *Pipeline) Emit(records []*models.ProductRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.err != nil {
		return p.err
	}

	batch := make([]*models.ProductRecord, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.metrics.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for _, record := range records {
		if !p.accept(record) {
			continue
		}
		batch = append(batch, record)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.err = fmt.Errorf("write batch: %w", err)
				return p.err
			}
		}
	}

	if err := flush(); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	return nil
}

// Close closes the writer, waiting at most the drain timeout.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Err()
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- p.writer.Close()
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close writer: %w", err)
		}
		return p.Err()
	case <-timer.C:
		slog.Error("output writer did not close in time", slog.Duration("timeout", drainTimeout))
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first error encountered during writing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) accept(record *models.ProductRecord) bool {
	if err := parser.ValidateRecord(record); err != nil {
		p.metrics.addValidation("invalid_record")
		slog.Warn("dropping invalid record", slog.Any("error", err))
		return false
	}
	if _, ok := p.seen[record.ID]; ok {
		p.metrics.addValidation("duplicate_id")
		return false
	}
	p.seen[record.ID] = struct{}{}
	return true
}

type metrics struct {
	mu         sync.Mutex
	written    int64
	batches    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addWritten(n int) {
	m.mu.Lock()
	m.written += int64(n)
	m.batches++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"written_records":   m.written,
		"batches":           m.batches,
		"validation_errors": copyValidation,
	}
}
