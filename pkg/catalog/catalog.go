// Package catalog normalizes distributor catalog lookups into bom.PartInfo.
//
// Two sources are provided: JLCPCB talks to the JLCPCB component search API
// directly, Remote talks to a deployed bom-server's /api/lcsc proxy endpoint.
// Both report failures as *StatusError so callers can tell a missing part from
// an upstream outage; anything else returned is a transport failure.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upstream catalog calls.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_catalog_requests_total",
		Help: "Total catalog upstream requests by source and outcome",
	}, []string{"source", "outcome"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bom_catalog_request_duration_seconds",
		Help:    "Catalog upstream request duration in seconds by source",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})
)

// ErrNotFound matches any *StatusError with a 404 status.
var ErrNotFound = errors.New("part not found")

// Source looks up a single part by LCSC part number.
type Source interface {
	Lookup(ctx context.Context, partNumber string) (*bom.PartInfo, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, partNumber string) (*bom.PartInfo, error)

// Lookup implements Source.
func (f SourceFunc) Lookup(ctx context.Context, partNumber string) (*bom.PartInfo, error) {
	return f(ctx, partNumber)
}

// StatusError is a failure reported by the catalog with an HTTP-equivalent status.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog error (status %d): %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func notFound() *StatusError {
	return &StatusError{StatusCode: http.StatusNotFound, Message: "Part not found"}
}

func invalidPartNumber() *StatusError {
	return &StatusError{StatusCode: http.StatusBadRequest, Message: "Invalid LCSC part number format"}
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return "not_found"
	case errors.As(err, &se):
		return "upstream_error"
	default:
		return "network_error"
	}
}
