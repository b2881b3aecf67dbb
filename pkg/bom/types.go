// Package bom defines the bill-of-materials data model shared by the store,
// the fetch pipeline and the import/export collaborators.
package bom

import "regexp"

// Status is the enrichment state of a BOM row.
type Status string

const (
	// StatusPending means the row is eligible for the next fetch run.
	StatusPending Status = "pending"

	// StatusLoading means the row's part number is part of the active run.
	StatusLoading Status = "loading"

	// StatusSuccess means enrichment data is attached to the row.
	StatusSuccess Status = "success"

	// StatusError means the last fetch for the row's part number failed.
	StatusError Status = "error"

	// StatusSkipped means the row has no fetchable part number.
	StatusSkipped Status = "skipped"
)

// AllStatuses lists every row status in display order.
var AllStatuses = []Status{StatusPending, StatusLoading, StatusSuccess, StatusError, StatusSkipped}

var partNumberPattern = regexp.MustCompile(`^C[0-9]+$`)

// ValidPartNumber reports whether pn is a well-formed LCSC part number
// ("C" followed by one or more digits).
func ValidPartNumber(pn string) bool {
	return partNumberPattern.MatchString(pn)
}

// InitialStatus returns the status a row starts with for the given part number.
func InitialStatus(pn string) Status {
	if ValidPartNumber(pn) {
		return StatusPending
	}
	return StatusSkipped
}

// PriceTier is a quantity band with its unit price in USD.
type PriceTier struct {
	MinQty int `json:"minQty"`
	// MaxQty is nil when the band has no upper bound.
	MaxQty *int    `json:"maxQty"`
	Price  float64 `json:"price"`
}

// Contains reports whether qty falls inside the tier.
func (t PriceTier) Contains(qty int) bool {
	return qty >= t.MinQty && (t.MaxQty == nil || qty <= *t.MaxQty)
}

// PartInfo is the normalized distributor record attached to a row after a
// successful fetch.
type PartInfo struct {
	PartNumber   string      `json:"partNumber"`
	Manufacturer string      `json:"manufacturer"`
	MPN          string      `json:"mpn"`
	Description  string      `json:"description"`
	Package      string      `json:"package"`
	Stock        int         `json:"stock"`
	Prices       []PriceTier `json:"prices"`
	Datasheet    string      `json:"datasheet"`
	ImageURL     string      `json:"imageUrl"`
	URL          string      `json:"url"`
}

// Item is one raw BOM line as produced by the parser.
type Item struct {
	Comment    string `json:"comment"`
	Designator string `json:"designator"`
	Footprint  string `json:"footprint"`
	PartNumber string `json:"lcsc"`
	Quantity   int    `json:"quantity"`
}

// Row is a BOM line together with its enrichment state.
type Row struct {
	ID         string `json:"id"`
	Comment    string `json:"comment"`
	Designator string `json:"designator"`
	Footprint  string `json:"footprint"`
	PartNumber string `json:"lcsc"`
	Quantity   int    `json:"quantity"`

	Info         *PartInfo `json:"lcscInfo,omitempty"`
	Status       Status    `json:"fetchStatus"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UnitPrice    *float64  `json:"unitPrice,omitempty"`
	TotalPrice   *float64  `json:"totalPrice,omitempty"`
}

// Fetchable reports whether the row's part number can be looked up.
func (r Row) Fetchable() bool {
	return ValidPartNumber(r.PartNumber)
}

// Clone returns a copy of the row that shares no mutable state with r.
// PartInfo is immutable once attached and is shared.
func (r Row) Clone() Row {
	c := r
	if r.UnitPrice != nil {
		v := *r.UnitPrice
		c.UnitPrice = &v
	}
	if r.TotalPrice != nil {
		v := *r.TotalPrice
		c.TotalPrice = &v
	}
	return c
}
