// Package export writes enriched BOM rows as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the single worksheet in XLSX exports.
const SheetName = "BOM"

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat returns the Format named by s (case-insensitive). An empty
// string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Columns are the exported column headers in order.
var Columns = []string{
	"Comment",
	"Designator",
	"Footprint",
	"LCSC",
	"Quantity",
	"Manufacturer",
	"MPN",
	"Description",
	"Package",
	"Stock",
	"Unit Price (USD)",
	"Total Price (USD)",
	"Datasheet",
}

// ColumnWidths are the XLSX column widths, matching Columns.
var ColumnWidths = []float64{20, 30, 20, 10, 8, 15, 20, 40, 12, 10, 15, 15, 50}

// Record returns the cell values of r in column order. Fields without data are
// empty strings; numbers stay numeric.
func Record(r bom.Row) []any {
	rec := []any{r.Comment, r.Designator, r.Footprint, r.PartNumber, r.Quantity}

	if r.Info != nil {
		rec = append(rec, r.Info.Manufacturer, r.Info.MPN, r.Info.Description, r.Info.Package, r.Info.Stock)
	} else {
		rec = append(rec, "", "", "", "", "")
	}

	rec = append(rec, optional(r.UnitPrice), optional(r.TotalPrice))

	if r.Info != nil {
		rec = append(rec, r.Info.Datasheet)
	} else {
		rec = append(rec, "")
	}
	return rec
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

// Write writes rows to w in the given format.
func Write(w io.Writer, f Format, rows []bom.Row) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteCSV writes a header line and one line per row.
func WriteCSV(w io.Writer, rows []bom.Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	line := make([]string, len(Columns))
	for i, r := range rows {
		for j, v := range Record(r) {
			line[j] = formatCell(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write CSV row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// WriteXLSX writes a workbook with a single "BOM" sheet.
func WriteXLSX(w io.Writer, rows []bom.Row) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		rec := Record(r)
		if err := f.SetSheetRow(SheetName, cell, &rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	for i, width := range ColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width of column %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename returns the download name (without extension) for an export of the
// BOM uploaded as original. Without an upload name it falls back to a dated
// default.
func Filename(original string, now time.Time) string {
	if original != "" {
		base := filepath.Base(original)
		if ext := filepath.Ext(base); ext != "" && ext != base {
			base = strings.TrimSuffix(base, ext)
		}
		if base != "" && base != "." {
			return base + "-extended"
		}
	}
	return "bom-extended-" + now.Format("2006-01-02")
}
