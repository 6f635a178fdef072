package resultset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// FormatCell renders a cell the way the stored answer files do: integral
// floats keep a trailing ".0", midnight timestamps print as a date, and
// NULL is empty.
func FormatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".NI") {
			s += ".0"
		}
		return s
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.DateTime)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// WriteCSV writes the header and every row.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = FormatCell(v)
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSV returns the table in CSV form.
func (t Table) CSV() string {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return ""
	}

	return buf.String()
}

// Fingerprint returns the hex sha256 of the CSV form. Two runs of a query
// over an unchanged snapshot produce the same fingerprint.
func (t Table) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.CSV()))
	return hex.EncodeToString(sum[:])
}

// ReadCSV parses a stored answer. Cells that parse as integers or floats
// become numbers, empty cells become NULL and the rest stay text.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{Rows: [][]any{}}, nil
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	t := Table{
		Columns: make([]Column, len(header)),
		Rows:    [][]any{},
	}

	for i, name := range header {
		t.Columns[i] = Column{Name: name}
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}

		if len(record) != len(header) {
			return Table{}, fmt.Errorf("read row %d: got %d fields, want %d", len(t.Rows)+1, len(record), len(header))
		}

		row := make([]any, len(record))
		for i, s := range record {
			row[i] = parseCell(s)
		}

		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// ParseCSV is ReadCSV over a string.
func ParseCSV(s string) (Table, error) {
	return ReadCSV(strings.NewReader(s))
}

// TruncateCSV keeps the header and the first maxRows data lines and notes
// the total row count when lines were dropped.
func TruncateCSV(s string, maxRows int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= maxRows+1 {
		return s
	}

	return strings.Join(lines[:maxRows+1], "\n") + fmt.Sprintf("\n... (%d total rows)", len(lines)-1)
}

func parseCell(s string) any {
	if s == "" {
		return nil
	}

	if !strings.ContainsAny(s[:1], "0123456789+-.") {
		return s
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	return s
}
