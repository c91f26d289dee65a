package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// TimeLayout is how timestamps are rendered in CSV output. Fractional seconds
// appear only when present.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// EncodeTable writes a header row followed by every table row.
func EncodeTable(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			record[j] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatValue renders one table cell. Missing numbers are empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.UTC().Format(TimeLayout)
	case domain.NullFloat:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// DirWriter archives tables as <dir>/<table>.csv with a BOM. The cleaned batch
// goes to the cleaned directory and the star-schema tables to the transform
// directory. Existing files are replaced.
type DirWriter struct {
	cleanedDir   string
	transformDir string
}

// NewDirWriter creates a DirWriter over the two output directories.
func NewDirWriter(cleanedDir, transformDir string) *DirWriter {
	return &DirWriter{cleanedDir: cleanedDir, transformDir: transformDir}
}

func (w *DirWriter) Name() string { return "csv" }

// PathFor returns the file a table is written to.
func (w *DirWriter) PathFor(table string) string {
	dir := w.transformDir
	if table == domain.TableCleaned {
		dir = w.cleanedDir
	}
	return filepath.Join(dir, table+".csv")
}

// WriteTable writes to a temporary file in the target directory and renames it
// into place.
func (w *DirWriter) WriteTable(_ context.Context, t domain.Table) error {
	path := w.PathFor(t.Name())
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+t.Name()+"-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := io.WriteString(tmp, BOM); err != nil {
		tmp.Close()
		return fmt.Errorf("write bom: %w", err)
	}
	if err := EncodeTable(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", t.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
