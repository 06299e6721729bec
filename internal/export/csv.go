// Package export writes result sets to CSV and JSON.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/willibrandon/dbpanel/internal/db"
)

// EncodeCSV writes a header line of column names followed by one line per
// row. Every non-nil value is wrapped in double quotes with embedded quotes
// doubled; nil and missing values are written as empty unquoted fields.
// Header names are quoted only when they contain a separator, quote or
// line break.
func EncodeCSV(w io.Writer, columns []string, rows [][]any) error {
	bw := bufio.NewWriter(w)

	header := make([]string, len(columns))
	for i, name := range columns {
		header[i] = quoteIfNeeded(name)
	}
	if _, err := bw.WriteString(strings.Join(header, ",") + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	fields := make([]string, len(columns))
	for _, row := range rows {
		for i := range columns {
			fields[i] = ""
			if i >= len(row) {
				continue
			}
			if s, ok := db.FormatValue(row[i]); ok {
				fields[i] = quote(s)
			}
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

// DecodeCSV reads text produced by EncodeCSV back into a header and rows of
// strings. Null values come back as empty strings. In a single-column file a
// null row is an empty line; those are kept as rows even though encoding/csv
// skips blank lines.
func DecodeCSV(r io.Reader) (header []string, rows [][]string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var consumed int64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
		}

		if header == nil {
			header = record
		} else {
			if len(header) == 1 {
				line, _ := reader.FieldPos(0)
				next := 1 + bytes.Count(data[:consumed], []byte("\n"))
				rows = appendNullRows(rows, line-next)
			}
			rows = append(rows, record)
		}
		consumed = reader.InputOffset()
	}

	if len(header) == 1 {
		rows = appendNullRows(rows, bytes.Count(data[consumed:], []byte("\n")))
	}
	return header, rows, nil
}

func appendNullRows(rows [][]string, n int) [][]string {
	for range n {
		rows = append(rows, []string{""})
	}
	return rows
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
