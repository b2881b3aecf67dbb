package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bom-enricher/pkg/catalog"
)

// Kind represents a classification of part lookup failures.
type Kind string

const (
	// KindNotFound means the part number is well-formed but has no catalog match.
	KindNotFound Kind = "not_found"

	// KindUpstream means the catalog answered with an error status.
	KindUpstream Kind = "upstream"

	// KindNetwork means the catalog could not be reached.
	KindNetwork Kind = "network"
)

// PartError is a failed lookup for one part number.
type PartError struct {
	PartNumber string
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *PartError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lookup %s: %s error (status %d): %s",
			e.PartNumber, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("lookup %s: %s error: %s", e.PartNumber, e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartError) Unwrap() error {
	return e.Err
}

// Retriable reports whether trying again later may succeed.
func (e *PartError) Retriable() bool {
	return e.Kind != KindNotFound
}

// classify converts a catalog failure into a *PartError.
func classify(partNumber string, err error) *PartError {
	var se *catalog.StatusError
	if errors.As(err, &se) {
		kind := KindUpstream
		if se.StatusCode == http.StatusNotFound {
			kind = KindNotFound
		}
		return &PartError{
			PartNumber: partNumber,
			Kind:       kind,
			StatusCode: se.StatusCode,
			Message:    se.Message,
			Err:        err,
		}
	}

	return &PartError{
		PartNumber: partNumber,
		Kind:       KindNetwork,
		Message:    err.Error(),
		Err:        err,
	}
}
