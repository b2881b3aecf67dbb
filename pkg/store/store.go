// Package store holds the authoritative in-memory BOM row collection.
//
// Every exported method takes the store's single mutex for its whole duration,
// so each call is one indivisible update as seen by readers. Results and errors
// from the fetch pipeline are fanned out to every row sharing a part number.
package store

import (
	"errors"
	"sync"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/pricing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var rowsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "bom_rows",
	Help: "Number of BOM rows by fetch status",
}, []string{"status"})

var (
	// ErrRowNotFound is returned for an unknown row ID.
	ErrRowNotFound = errors.New("row not found")

	// ErrInvalidQuantity is returned when a patch sets a negative quantity.
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

// Patch describes a partial row edit. Nil fields are left unchanged.
type Patch struct {
	Comment    *string `json:"comment,omitempty"`
	Designator *string `json:"designator,omitempty"`
	Footprint  *string `json:"footprint,omitempty"`
	PartNumber *string `json:"lcsc,omitempty"`
	Quantity   *int    `json:"quantity,omitempty"`
}

// Counts is the number of rows per status.
type Counts struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Loading int `json:"loading"`
	Success int `json:"success"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

func (c *Counts) add(s bom.Status) {
	c.Total++
	switch s {
	case bom.StatusPending:
		c.Pending++
	case bom.StatusLoading:
		c.Loading++
	case bom.StatusSuccess:
		c.Success++
	case bom.StatusError:
		c.Error++
	case bom.StatusSkipped:
		c.Skipped++
	}
}

// Snapshot is a consistent view of the whole store taken under one lock.
type Snapshot struct {
	Rows      []bom.Row `json:"rows"`
	TotalCost float64   `json:"totalCost"`
	Counts    Counts    `json:"counts"`
	Filename  string    `json:"filename,omitempty"`
}

// Store is the mutable row collection. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	rows     []bom.Row
	filename string
	logger   zerolog.Logger
}

// New creates an empty store.
func New(logger zerolog.Logger) *Store {
	s := &Store{logger: logger.With().Str("component", "store").Logger()}
	s.updateGaugeLocked()
	return s
}

// Load replaces every row with fresh rows built from items. Each row gets a new
// ID and starts pending or skipped depending on its part number. Negative
// quantities are stored as 0. The tracked filename is left untouched.
func (s *Store) Load(items []bom.Item) []bom.Row {
	rows := make([]bom.Row, len(items))
	for i, it := range items {
		if it.Quantity < 0 {
			it.Quantity = 0
		}
		rows[i] = bom.Row{
			ID:         uuid.NewString(),
			Comment:    it.Comment,
			Designator: it.Designator,
			Footprint:  it.Footprint,
			PartNumber: it.PartNumber,
			Quantity:   it.Quantity,
			Status:     bom.InitialStatus(it.PartNumber),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = rows
	s.updateGaugeLocked()
	s.logger.Info().Int("rows", len(rows)).Msg("Loaded BOM")
	return cloneRows(rows)
}

// SetFilename records the name of the file the rows were loaded from.
func (s *Store) SetFilename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filename = name
}

// Filename returns the recorded source filename, or "".
func (s *Store) Filename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename
}

// Update applies p to the row with the given ID and returns the updated row.
//
// Changing the part number discards any enrichment and re-derives the status.
// Changing the quantity of an enriched row recomputes its prices.
func (s *Store) Update(id string, p Patch) (bom.Row, error) {
	if p.Quantity != nil && *p.Quantity < 0 {
		return bom.Row{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return bom.Row{}, ErrRowNotFound
	}
	r := &s.rows[i]

	if p.Comment != nil {
		r.Comment = *p.Comment
	}
	if p.Designator != nil {
		r.Designator = *p.Designator
	}
	if p.Footprint != nil {
		r.Footprint = *p.Footprint
	}
	if p.PartNumber != nil && *p.PartNumber != r.PartNumber {
		r.PartNumber = *p.PartNumber
		r.Info = nil
		r.UnitPrice, r.TotalPrice = nil, nil
		r.ErrorMessage = ""
		r.Status = bom.InitialStatus(r.PartNumber)
	}
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
		if r.Info != nil {
			r.UnitPrice, r.TotalPrice = pricing.Line(r.Info.Prices, r.Quantity)
		}
	}

	s.updateGaugeLocked()
	return r.Clone(), nil
}

// Remove deletes the row with the given ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrRowNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	s.updateGaugeLocked()
	return nil
}

// Clear removes every row and forgets the filename.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = nil
	s.filename = ""
	s.updateGaugeLocked()
}

// ApplyEnrichment attaches info to every row whose part number is partNumber,
// marks them success and derives each row's prices from its own quantity.
// It returns the number of rows updated. Applying the same record twice leaves
// the rows unchanged.
func (s *Store) ApplyEnrichment(partNumber string, info *bom.PartInfo) int {
	if info == nil || !bom.ValidPartNumber(partNumber) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.rows {
		r := &s.rows[i]
		if r.PartNumber != partNumber {
			continue
		}
		r.Info = info
		r.Status = bom.StatusSuccess
		r.ErrorMessage = ""
		r.UnitPrice, r.TotalPrice = pricing.Line(info.Prices, r.Quantity)
		n++
	}

	s.updateGaugeLocked()
	return n
}

// SetStatus sets status on every row whose part number is partNumber and
// returns the number of rows updated. msg is kept only for StatusError.
//
// StatusSuccess can only be reached through ApplyEnrichment; passing it here
// updates nothing. Moving a row to any other status drops its enrichment.
func (s *Store) SetStatus(partNumber string, status bom.Status, msg string) int {
	if status == bom.StatusSuccess || !bom.ValidPartNumber(partNumber) {
		return 0
	}
	if status != bom.StatusError {
		msg = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.rows {
		r := &s.rows[i]
		if r.PartNumber != partNumber {
			continue
		}
		r.Status = status
		r.ErrorMessage = msg
		r.Info = nil
		r.UnitPrice, r.TotalPrice = nil, nil
		n++
	}

	s.updateGaugeLocked()
	return n
}

// ResetErrors moves every errored row back to pending and returns how many
// rows changed. No other row is touched.
func (s *Store) ResetErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.rows {
		if s.rows[i].Status == bom.StatusError {
			s.rows[i].Status = bom.StatusPending
			s.rows[i].ErrorMessage = ""
			n++
		}
	}

	s.updateGaugeLocked()
	return n
}

// Rows returns a copy of every row in load order.
func (s *Store) Rows() []bom.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.rows)
}

// Row returns a copy of the row with the given ID.
func (s *Store) Row(id string) (bom.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return bom.Row{}, ErrRowNotFound
	}
	return s.rows[i].Clone(), nil
}

// UniquePartNumbers returns the distinct valid part numbers in first-seen order.
func (s *Store) UniquePartNumbers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partNumbersLocked(func(bom.Row) bool { return true })
}

// PendingPartNumbers returns the distinct part numbers of pending rows in
// first-seen order.
func (s *Store) PendingPartNumbers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partNumbersLocked(func(r bom.Row) bool { return r.Status == bom.StatusPending })
}

// TotalCost sums the line totals of every priced row.
func (s *Store) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalCostLocked(s.rows)
}

// Counts returns the number of rows per status.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countsLocked(s.rows)
}

// Snapshot returns rows, total cost, counts and filename from the same instant.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Rows:      cloneRows(s.rows),
		TotalCost: totalCostLocked(s.rows),
		Counts:    countsLocked(s.rows),
		Filename:  s.filename,
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) partNumbersLocked(keep func(bom.Row) bool) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.rows {
		if !r.Fetchable() || !keep(r) {
			continue
		}
		if _, ok := seen[r.PartNumber]; ok {
			continue
		}
		seen[r.PartNumber] = struct{}{}
		out = append(out, r.PartNumber)
	}
	return out
}

func (s *Store) updateGaugeLocked() {
	c := countsLocked(s.rows)
	rowsByStatus.WithLabelValues(string(bom.StatusPending)).Set(float64(c.Pending))
	rowsByStatus.WithLabelValues(string(bom.StatusLoading)).Set(float64(c.Loading))
	rowsByStatus.WithLabelValues(string(bom.StatusSuccess)).Set(float64(c.Success))
	rowsByStatus.WithLabelValues(string(bom.StatusError)).Set(float64(c.Error))
	rowsByStatus.WithLabelValues(string(bom.StatusSkipped)).Set(float64(c.Skipped))
}

func countsLocked(rows []bom.Row) Counts {
	var c Counts
	for _, r := range rows {
		c.add(r.Status)
	}
	return c
}

func totalCostLocked(rows []bom.Row) float64 {
	var total float64
	for _, r := range rows {
		if r.TotalPrice != nil {
			total += *r.TotalPrice
		}
	}
	return total
}

func cloneRows(rows []bom.Row) []bom.Row {
	out := make([]bom.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
