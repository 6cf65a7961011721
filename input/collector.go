// Package input collects the names to screen from the command line, text
// files and CSV files, and prepares the final query list.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aluiziolira/sanctions-screen/config"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Collection is the ordered list of collected names: literal names first,
// then text-file names, then CSV names.
type Collection struct {
	Names []string

	Literal  int
	FromText int
	FromCSV  int

	// SkippedRows holds the file line numbers of CSV rows without a name.
	SkippedRows []int
}

// Collect gathers names from every configured source.
func Collect(in config.Input) (*Collection, error) {
	c := &Collection{}

	for _, name := range in.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c.Names = append(c.Names, name)
		c.Literal++
	}

	if in.TextFile != "" {
		names, err := LoadTextFile(in.TextFile)
		if err != nil {
			return nil, err
		}
		c.Names = append(c.Names, names...)
		c.FromText = len(names)
	}

	if in.CSVFile != "" {
		names, skipped, err := LoadCSVFile(in.CSVFile, CSVColumns{
			Name:      in.NameColumn,
			FirstName: in.FirstNameColumn,
			LastName:  in.LastNameColumn,
			Delimiter: in.CSVDelimiter,
		})
		if err != nil {
			return nil, err
		}
		c.Names = append(c.Names, names...)
		c.FromCSV = len(names)
		c.SkippedRows = skipped
	}

	return c, nil
}

// LoadTextFile reads one name per line, skipping blank lines.
func LoadTextFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(decodeUTF(f))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var names []string
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &InputError{Path: path, Err: fmt.Errorf("read lines: %w", err)}
	}
	return names, nil
}

// CSVColumns selects how names are read from a CSV file. Name takes
// precedence; otherwise FirstName and LastName are joined with a space.
type CSVColumns struct {
	Name      string
	FirstName string
	LastName  string
	Delimiter rune
}

// LoadCSVFile reads names from a CSV file with a header row. It returns the
// names and the line numbers of rows that produced no name.
func LoadCSVFile(path string, cols CSVColumns) ([]string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(decodeUTF(f))
	if cols.Delimiter != 0 {
		reader.Comma = cols.Delimiter
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		header = nil
	} else if err != nil {
		return nil, nil, &InputError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := index[h]; !ok {
			index[h] = i
		}
	}
	lookup := func(col string) (int, error) {
		if col == "" {
			return -1, nil
		}
		i, ok := index[col]
		if !ok {
			return -1, &InputError{Path: path, Err: fmt.Errorf("%w: %q", ErrMissingColumn, col)}
		}
		return i, nil
	}

	var nameIdx, firstIdx, lastIdx int
	if cols.Name != "" {
		if nameIdx, err = lookup(cols.Name); err != nil {
			return nil, nil, err
		}
	} else {
		if cols.FirstName == "" && cols.LastName == "" {
			return nil, nil, &InputError{Path: path, Err: errors.New("no name columns configured")}
		}
		if firstIdx, err = lookup(cols.FirstName); err != nil {
			return nil, nil, err
		}
		if lastIdx, err = lookup(cols.LastName); err != nil {
			return nil, nil, err
		}
	}

	var (
		names   []string
		skipped []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &InputError{Path: path, Err: fmt.Errorf("read row: %w", err)}
		}
		line, _ := reader.FieldPos(0)

		var name string
		if cols.Name != "" {
			name = field(record, nameIdx)
		} else {
			name = joinNonEmpty(field(record, firstIdx), field(record, lastIdx))
		}
		if name == "" {
			skipped = append(skipped, line)
			continue
		}
		names = append(names, name)
	}

	return names, skipped, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

// decodeUTF strips a leading byte order mark, switching to UTF-16 when the
// mark says so.
func decodeUTF(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
