// Package client provides the part lookup client used by the fetch pipeline.
// Every lookup is queued through one shared rate limiter so that all callers
// draw from the same upstream budget.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/Sternrassler/bom-enricher/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for part lookups.
var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_part_lookups_total",
		Help: "Total part lookups by outcome",
	}, []string{"outcome"})

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bom_part_lookup_duration_seconds",
		Help:    "Part lookup duration in seconds, including time queued in the limiter",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	lookupErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_part_lookup_errors_total",
		Help: "Total part lookup errors by kind",
	}, []string{"kind"})
)

// Client looks up enrichment data for single part numbers.
type Client struct {
	source  catalog.Source
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// New creates a client. source and limiter are required; the limiter should be
// the one instance shared by everything that calls the same upstream.
func New(source catalog.Source, limiter *ratelimit.Limiter, logger zerolog.Logger) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	return &Client{
		source:  source,
		limiter: limiter,
		logger:  logger.With().Str("component", "part-client").Logger(),
	}, nil
}

// Fetch returns the normalized record for partNumber.
//
// Catalog failures are returned as *PartError. Errors from the limiter itself
// (ratelimit.ErrCleared, or ctx being done) are returned wrapped but unclassified.
// Nothing is cached: every call reaches the source.
func (c *Client) Fetch(ctx context.Context, partNumber string) (*bom.PartInfo, error) {
	start := time.Now()
	defer func() {
		lookupDuration.Observe(time.Since(start).Seconds())
	}()

	info, err := ratelimit.Do(ctx, c.limiter, func(ctx context.Context) (*bom.PartInfo, error) {
		c.logger.Debug().Str("part_number", partNumber).Msg("Looking up part")
		return c.source.Lookup(ctx, partNumber)
	})
	if err == nil {
		lookupsTotal.WithLabelValues("ok").Inc()
		return info, nil
	}

	if errors.Is(err, ratelimit.ErrCleared) || ctx.Err() != nil {
		lookupsTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("lookup %s: %w", partNumber, err)
	}

	pe := classify(partNumber, err)
	lookupsTotal.WithLabelValues("error").Inc()
	lookupErrorsTotal.WithLabelValues(string(pe.Kind)).Inc()

	c.logger.Warn().
		Str("part_number", partNumber).
		Str("kind", string(pe.Kind)).
		Int("status", pe.StatusCode).
		Str("message", pe.Message).
		Msg("Part lookup failed")

	return nil, pe
}
