package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/sanctions-screen/models"
	"github.com/aluiziolira/sanctions-screen/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for result output.
type OutputWriter interface {
	Write(results []*models.SearchResult) error
	Close() error
	Validate() error
}

// Pipeline validates results and streams them to the writer as they are
// produced, so an interrupted run keeps every row finished so far.
type Pipeline struct {
	writer  OutputWriter
	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		metrics: metrics{
			byStatus:   make(map[string]int),
			validation: make(map[string]int),
		},
		shutdown: make(chan struct{}),
	}
}

// Process validates and writes results immediately, in call order.
func (p *Pipeline) Process(results ...*models.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	batch := make([]*models.SearchResult, 0, len(results))
	for _, result := range results {
		if err := parser.ValidateResult(result); err != nil {
			p.metrics.addValidation("invalid_record")
			return fmt.Errorf("validate result: %w", err)
		}
		batch = append(batch, result)
	}

	if err := p.writer.Write(batch); err != nil {
		err = fmt.Errorf("write results: %w", err)
		p.setErr(err)
		return err
	}
	for _, result := range batch {
		p.metrics.record(result.Status)
	}
	return nil
}

// Close prevents more submissions and stops progress reporting.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	return p.Err()
}

// Err returns the first write error encountered.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_results"].(int64)
				byStatus := metrics["by_status"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("match", byStatus[string(models.StatusMatch)]),
					slog.Int("no_match", byStatus[string(models.StatusNoMatch)]),
					slog.Int("unknown", byStatus[string(models.StatusUnknown)]),
					slog.Int("error", byStatus[string(models.StatusError)]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = err
	p.closed = true
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	byStatus   map[string]int
	validation map[string]int
}

func (m *metrics) record(status models.Status) {
	m.mu.Lock()
	m.processed++
	m.byStatus[string(status)]++
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

	copyStatus := make(map[string]int, len(m.byStatus))
	for k, v := range m.byStatus {
		copyStatus[k] = v
	}
	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_results": m.processed,
		"by_status":         copyStatus,
		"validation_errors": copyValidation,
	}
}
