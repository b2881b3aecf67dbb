package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
)

// ProxyPath is the lookup endpoint served by bom-server.
const ProxyPath = "/api/lcsc"

// ErrorBody is the JSON error payload returned by the proxy.
type ErrorBody struct {
	Error string `json:"error"`
}

// Remote is a Source that queries a bom-server proxy over HTTP.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemote creates a Remote source for the proxy at baseURL.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup implements Source.
func (r *Remote) Lookup(ctx context.Context, partNumber string) (info *bom.PartInfo, err error) {
	start := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
		catalogRequestsTotal.WithLabelValues("remote", outcome(err)).Inc()
	}()

	endpoint := r.baseURL + ProxyPath + "?part=" + url.QueryEscape(partNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body ErrorBody
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			msg = body.Error
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	info = &bom.PartInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, &StatusError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("decode part info: %v", err),
		}
	}
	return info, nil
}
