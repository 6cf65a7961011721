package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/sanctions-screen/models"
)

// EntitySeparator joins the rendered entity links inside the
// entity_results column.
const EntitySeparator = " | "

// Header is the CSV header row.
var Header = []string{"query_name", "status", "match_count", "search_url", "entity_results", "error"}

// OutputError reports an output file that cannot be created or written.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

// FormatEntities renders links for the entity_results column.
func FormatEntities(links []models.EntityLink) string {
	parts := make([]string, 0, len(links))
	for _, link := range links {
		parts = append(parts, link.String())
	}
	return strings.Join(parts, EntitySeparator)
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter truncates or creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, &OutputError{Path: filename, Err: fmt.Errorf("create csv file: %w", err)}
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header); err != nil {
		f.Close()
		return nil, &OutputError{Path: filename, Err: fmt.Errorf("write csv header: %w", err)}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, &OutputError{Path: filename, Err: fmt.Errorf("flush csv header: %w", err)}
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends results to the CSV output and flushes them.
func (cw *CSVWriter) Write(results []*models.SearchResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, result := range results {
		record := []string{
			result.QueryName,
			string(result.Status),
			strconv.Itoa(result.MatchCount),
			result.SearchURL,
			FormatEntities(result.Entities),
			result.Error,
		}
		if err := cw.writer.Write(record); err != nil {
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

// Validate ensures the file holds at least the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter truncates or creates filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, &OutputError{Path: filename, Err: fmt.Errorf("create json file: %w", err)}
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends results in JSONL format.
func (jw *JSONWriter) Write(results []*models.SearchResult) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, result := range results {
		if err := jw.encoder.Encode(result); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks the JSON file still exists. A run over zero names
// legitimately leaves it empty.
func (jw *JSONWriter) Validate() error {
	if _, err := os.Stat(jw.file.Name()); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &OutputError{Path: filename, Err: fmt.Errorf("create directory %q: %w", dir, err)}
	}
	return nil
}
