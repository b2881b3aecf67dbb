// Package testutil provides testing utilities for the BOM enricher.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockPrice is one price break in the JLCPCB wire format.
type MockPrice struct {
	StartNumber  int     `json:"startNumber"`
	EndNumber    int     `json:"endNumber"`
	ProductPrice float64 `json:"productPrice"`
}

// MockComponent is one search result in the JLCPCB wire format.
type MockComponent struct {
	ComponentCode            string      `json:"componentCode"`
	ComponentBrandEn         string      `json:"componentBrandEn"`
	ComponentModelEn         string      `json:"componentModelEn"`
	Describe                 string      `json:"describe"`
	ComponentSpecificationEn string      `json:"componentSpecificationEn"`
	StockCount               int         `json:"stockCount"`
	ComponentPrices          []MockPrice `json:"componentPrices"`
	DataManualURL            string      `json:"dataManualUrl"`
	MinImageAccessID         string      `json:"minImageAccessId"`
	LcscGoodsURL             string      `json:"lcscGoodsUrl"`
}

// MockJLCPCB is a configurable stand-in for the JLCPCB component search API.
// Every keyword returns the components registered for it; unknown keywords
// return an empty list.
type MockJLCPCB struct {
	server *httptest.Server

	mu         sync.RWMutex
	results    map[string][]MockComponent
	failStatus map[string]int
	delay      time.Duration

	// Tracking
	RequestCount    int
	LastKeyword     string
	LastUserAgent   string
	maxInFlight     int
	currentInFlight int
}

// NewMockJLCPCB starts a mock JLCPCB server.
func NewMockJLCPCB() *MockJLCPCB {
	m := &MockJLCPCB{
		results:    make(map[string][]MockComponent),
		failStatus: make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the search endpoint URL.
func (m *MockJLCPCB) URL() string {
	return m.server.URL + "/api/overseas-pcb-order/v1/shoppingCart/smtGood/selectSmtComponentList"
}

// Close shuts down the mock server.
func (m *MockJLCPCB) Close() {
	m.server.Close()
}

// AddComponent registers c as the exact match for its own code.
func (m *MockJLCPCB) AddComponent(c MockComponent) {
	m.SetResults(c.ComponentCode, c)
}

// SetResults sets the full result list returned for keyword.
func (m *MockJLCPCB) SetResults(keyword string, list ...MockComponent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[keyword] = list
}

// FailWith makes requests for keyword answer with the given HTTP status.
func (m *MockJLCPCB) FailWith(keyword string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus[keyword] = status
}

// SetDelay delays every response.
func (m *MockJLCPCB) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockJLCPCB) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastUserAgent returns the User-Agent of the latest request.
func (m *MockJLCPCB) GetLastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastUserAgent
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockJLCPCB) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

func (m *MockJLCPCB) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword string `json:"keyword"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.RequestCount++
	m.LastKeyword = req.Keyword
	m.LastUserAgent = r.Header.Get("User-Agent")
	m.currentInFlight++
	if m.currentInFlight > m.maxInFlight {
		m.maxInFlight = m.currentInFlight
	}
	delay := m.delay
	status, fail := m.failStatus[req.Keyword]
	list := m.results[req.Keyword]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.currentInFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if fail {
		w.WriteHeader(status)
		return
	}

	if list == nil {
		list = []MockComponent{}
	}
	resp := map[string]any{
		"code": 200,
		"data": map[string]any{
			"componentPageInfo": map[string]any{
				"list": list,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// NewResistor returns a typical passive with three price breaks, the last one
// open-ended (EndNumber -1).
func NewResistor(code string) MockComponent {
	return MockComponent{
		ComponentCode:            code,
		ComponentBrandEn:         "UNI-ROYAL(Uniroyal Elec)",
		ComponentModelEn:         "0402WGF1002TCE",
		Describe:                 "62.5mW Thick Film Resistors 50V ±1% 10kΩ 0402",
		ComponentSpecificationEn: "0402",
		StockCount:               12000000,
		ComponentPrices: []MockPrice{
			{StartNumber: 100, EndNumber: -1, ProductPrice: 0.05},
			{StartNumber: 1, EndNumber: 9, ProductPrice: 0.10},
			{StartNumber: 10, EndNumber: 99, ProductPrice: 0.08},
		},
		DataManualURL:    "https://datasheet.lcsc.com/" + code + ".pdf",
		MinImageAccessID: "img-" + code,
	}
}
