package bom

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrEmptyBOM is returned when the input has no header row.
var ErrEmptyBOM = errors.New("empty BOM file")

// Recognized CSV columns (compared case-insensitively after trimming).
const (
	ColumnComment    = "comment"
	ColumnDesignator = "designator"
	ColumnFootprint  = "footprint"
	ColumnLCSC       = "lcsc"
	ColumnQuantity   = "quantity"
)

// ParseResult holds the parsed items and any validation warnings.
// Warnings never block ingestion.
type ParseResult struct {
	Items    []Item
	Warnings []string
}

// ParseCSV reads a KiCad/JLCPCB style BOM CSV.
//
// Rows with neither a designator nor a comment are dropped. Quantities that do not
// start with a non-negative integer become 0.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyBOM
	}
	if err != nil {
		return nil, fmt.Errorf("CSV parsing error in header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	res := &ParseResult{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV parsing error: %w", err)
		}
		if isBlank(rec) {
			continue
		}

		item := Item{
			Comment:    field(rec, ColumnComment),
			Designator: field(rec, ColumnDesignator),
			Footprint:  field(rec, ColumnFootprint),
			PartNumber: field(rec, ColumnLCSC),
			Quantity:   parseQuantity(field(rec, ColumnQuantity)),
		}
		if item.Designator == "" && item.Comment == "" {
			continue
		}
		res.Items = append(res.Items, item)
	}

	res.Warnings = Validate(res.Items)
	return res, nil
}

// ValidateItem returns the problems found in a single item.
func ValidateItem(item Item) []string {
	var problems []string
	if item.Designator == "" {
		problems = append(problems, "Designator is required")
	}
	if item.Comment == "" {
		problems = append(problems, "Comment is required")
	}
	if item.Quantity <= 0 {
		problems = append(problems, "Quantity must be positive")
	}
	if item.PartNumber != "" && !ValidPartNumber(item.PartNumber) {
		problems = append(problems, "Invalid LCSC part number format (should be C followed by numbers)")
	}
	return problems
}

// Validate returns human-readable warnings for all items, prefixed with the
// 1-based row number.
func Validate(items []Item) []string {
	var warnings []string
	for i, item := range items {
		for _, p := range ValidateItem(item) {
			warnings = append(warnings, fmt.Sprintf("Row %d: %s", i+1, p))
		}
	}
	return warnings
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseQuantity reads the leading integer of s, e.g. "31", " 12pcs" or "3.5".
// Negative values become 0.
func parseQuantity(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
