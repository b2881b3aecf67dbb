package cache

import "strings"

// CacheKey identifies a cached catalog record.
type CacheKey struct {
	// Source is the catalog source name (e.g., "jlcpcb").
	Source string

	// PartNumber is the LCSC part number (e.g., "C17168").
	PartNumber string
}

// String generates a deterministic cache key string.
// Format: bom:part:source:partnumber
//
// Example:
//
//	bom:part:jlcpcb:C17168
func (k CacheKey) String() string {
	parts := []string{"bom", "part"}

	source := strings.ToLower(strings.TrimSpace(k.Source))
	if source == "" {
		source = "default"
	}
	parts = append(parts, source)
	parts = append(parts, strings.TrimSpace(k.PartNumber))

	return strings.Join(parts, ":")
}
