package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json" in any case. An empty string means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Result describes a completed export.
type Result struct {
	FilePath string `json:"file_path"`
	RowCount int    `json:"row_count"`
	Format   Format `json:"format"`
}

// String returns a one-line summary of the export.
func (r *Result) String() string {
	return fmt.Sprintf("Exported %d rows to %s: %s", r.RowCount, strings.ToUpper(string(r.Format)), r.FilePath)
}

// WriteFile exports rows to path in the given format. A leading ~ is
// expanded, the format's extension is appended when missing and parent
// directories are created.
func WriteFile(path string, format Format, columns []string, rows [][]any) (*Result, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns in result set")
	}

	absPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	ext := "." + string(format)
	if !strings.HasSuffix(strings.ToLower(absPath), ext) {
		absPath += ext
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		err = EncodeCSV(&buf, columns, rows)
	case FormatJSON:
		err = encodeJSON(&buf, columns, rows)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(absPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	logger.Info("exported rows", "path", absPath, "format", string(format), "rows", len(rows))

	return &Result{FilePath: absPath, RowCount: len(rows), Format: format}, nil
}

// encodeJSON writes an array of objects keyed by column name; nil becomes
// JSON null.
func encodeJSON(buf *bytes.Buffer, columns []string, rows [][]any) error {
	records := make([]map[string]any, len(rows))
	for i, row := range rows {
		record := make(map[string]any, len(columns))
		for j, name := range columns {
			if j < len(row) {
				record[name] = db.NormalizeValue(row[j])
			} else {
				record[name] = nil
			}
		}
		records[i] = record
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// expandPath expands ~ to the home directory and returns an absolute path.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return absPath, nil
}
