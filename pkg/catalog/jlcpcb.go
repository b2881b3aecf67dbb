package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Upstream defaults.
const (
	DefaultJLCPCBEndpoint  = "https://jlcpcb.com/api/overseas-pcb-order/v1/shoppingCart/smtGood/selectSmtComponentList"
	DefaultJLCPCBUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	jlcpcbAssetsURL = "https://assets.jlcpcb.com/attachments/"
	lcscProductURL  = "https://www.lcsc.com/product-detail/%s.html"
)

// JLCPCBConfig holds the direct upstream configuration.
type JLCPCBConfig struct {
	// Endpoint is the component search URL.
	Endpoint string

	// UserAgent sent with every request. The endpoint rejects empty agents.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// RequestsPerSecond caps upstream calls across all callers of this source.
	// Set to <= 0 to disable.
	RequestsPerSecond float64
}

// DefaultJLCPCBConfig returns the default upstream configuration.
func DefaultJLCPCBConfig() JLCPCBConfig {
	return JLCPCBConfig{
		Endpoint:          DefaultJLCPCBEndpoint,
		UserAgent:         DefaultJLCPCBUserAgent,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
	}
}

// jlcpcbComponent is one entry of the search result list.
type jlcpcbComponent struct {
	ComponentCode            string        `json:"componentCode"`
	ComponentBrandEn         string        `json:"componentBrandEn"`
	ComponentModelEn         string        `json:"componentModelEn"`
	Describe                 string        `json:"describe"`
	ComponentSpecificationEn string        `json:"componentSpecificationEn"`
	StockCount               int           `json:"stockCount"`
	ComponentPrices          []jlcpcbPrice `json:"componentPrices"`
	DataManualURL            string        `json:"dataManualUrl"`
	MinImageAccessID         string        `json:"minImageAccessId"`
	LcscGoodsURL             string        `json:"lcscGoodsUrl"`
}

type jlcpcbPrice struct {
	StartNumber  int     `json:"startNumber"`
	EndNumber    int     `json:"endNumber"`
	ProductPrice float64 `json:"productPrice"`
}

type jlcpcbSearchResponse struct {
	Code int `json:"code"`
	Data *struct {
		ComponentPageInfo *struct {
			List []jlcpcbComponent `json:"list"`
		} `json:"componentPageInfo"`
	} `json:"data"`
}

// JLCPCB is a Source backed by the JLCPCB component search API.
type JLCPCB struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     JLCPCBConfig
	logger     zerolog.Logger
}

// NewJLCPCB creates a JLCPCB source. Zero config fields fall back to defaults.
func NewJLCPCB(cfg JLCPCBConfig, logger zerolog.Logger) *JLCPCB {
	def := DefaultJLCPCBConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &JLCPCB{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		config:     cfg,
		logger:     logger.With().Str("source", "jlcpcb").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (j *JLCPCB) SetHTTPClient(client *http.Client) {
	j.httpClient = client
}

// Lookup implements Source. Only an exact componentCode match counts as found.
func (j *JLCPCB) Lookup(ctx context.Context, partNumber string) (info *bom.PartInfo, err error) {
	if !bom.ValidPartNumber(partNumber) {
		return nil, invalidPartNumber()
	}

	start := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues("jlcpcb").Observe(time.Since(start).Seconds())
		catalogRequestsTotal.WithLabelValues("jlcpcb", outcome(err)).Inc()
	}()

	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for upstream rate limit: %w", err)
		}
	}

	body, err := json.Marshal(map[string]string{"keyword": partNumber})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", j.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	j.logger.Debug().Str("part_number", partNumber).Msg("Querying JLCPCB component search")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jlcpcb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		j.logger.Warn().
			Str("part_number", partNumber).
			Int("status", resp.StatusCode).
			Msg("JLCPCB API error")
		return nil, &StatusError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("JLCPCB API error: %d", resp.StatusCode),
		}
	}

	var search jlcpcbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, &StatusError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("decode JLCPCB response: %v", err),
		}
	}

	if search.Code != 200 || search.Data == nil || search.Data.ComponentPageInfo == nil {
		return nil, notFound()
	}

	for _, c := range search.Data.ComponentPageInfo.List {
		if c.ComponentCode == partNumber {
			return normalize(c), nil
		}
	}
	return nil, notFound()
}

func normalize(c jlcpcbComponent) *bom.PartInfo {
	info := &bom.PartInfo{
		PartNumber:   c.ComponentCode,
		Manufacturer: c.ComponentBrandEn,
		MPN:          c.ComponentModelEn,
		Description:  c.Describe,
		Package:      c.ComponentSpecificationEn,
		Stock:        c.StockCount,
		Prices:       normalizePrices(c.ComponentPrices),
		Datasheet:    c.DataManualURL,
		URL:          c.LcscGoodsURL,
	}
	if info.Manufacturer == "" {
		info.Manufacturer = "Unknown"
	}
	if info.Stock < 0 {
		info.Stock = 0
	}
	if c.MinImageAccessID != "" {
		info.ImageURL = jlcpcbAssetsURL + c.MinImageAccessID
	}
	if info.URL == "" {
		info.URL = fmt.Sprintf(lcscProductURL, c.ComponentCode)
	}
	return info
}

// normalizePrices sorts tiers ascending; an end of -1 marks the open-ended tier.
func normalizePrices(prices []jlcpcbPrice) []bom.PriceTier {
	tiers := make([]bom.PriceTier, 0, len(prices))
	for _, p := range prices {
		t := bom.PriceTier{MinQty: p.StartNumber, Price: p.ProductPrice}
		if p.EndNumber != -1 {
			end := p.EndNumber
			t.MaxQty = &end
		}
		tiers = append(tiers, t)
	}
	sort.SliceStable(tiers, func(a, b int) bool { return tiers[a].MinQty < tiers[b].MinQty })
	return tiers
}
