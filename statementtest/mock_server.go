// Package statementtest provides an in-process httptest.Server that
// speaks enough of the statement-submission protocol to exercise a
// StatementClient end to end: paging, session-mutation headers, 503
// backpressure, and partial/full cancellation.
package statementtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	presto "github.com/prestosql-oss/statement-client"
)

// QueryTemplate describes a query a MockServer knows how to answer: its
// SQL text, its result shape split across one or more batches, and any
// failure/latency behavior to simulate along the way.
type QueryTemplate struct {
	SQL string

	Columns []*presto.Column
	Data    [][]any // rows, split evenly across DataBatches pages

	// DataBatches is the number of pages Data is divided into. Zero or
	// one means a single page.
	DataBatches int

	// QueueBatches is the number of pages returned before the first
	// data page, each carrying Stats.State "QUEUED" and no rows.
	QueueBatches int

	// FailuresBeforeSuccess is the number of consecutive 503 responses
	// the mock returns for this query's paging requests before it
	// starts serving real pages, simulating backpressure (scenario B).
	// Every such failure is also consumed by an Advance retry attempt,
	// so it counts toward the caller's deadline.
	FailuresBeforeSuccess int

	// Error, if set, is returned on the final page, alongside that
	// page's share of Data, and the page's state becomes FAILED.
	Error *presto.QueryError

	// SetSessionHeaders, if non-nil, is emitted as X-Presto-Set-Session
	// headers on the first page only (scenario D).
	SetSessionHeaders map[string]string

	// Latency is added before every page and every 503 response for
	// this query; DELETE responses are not delayed.
	Latency time.Duration
}

type activeQuery struct {
	template     *QueryTemplate
	id           string
	mu           sync.Mutex
	batchIndex   int // which page to serve next
	failuresLeft int
	cancelled    bool
}

// CancelBehavior configures how the partial-cancel endpoint responds,
// independent of any query's own template.
type CancelBehavior struct {
	StatusCode int
	Delay      time.Duration
	Hang       bool // never respond; caller's timeout must fire
}

// MockServer is a minimal stand-in for a Presto/Trino coordinator.
// Grounded on the teacher's prestotest.MockPrestoServer, adapted to the
// new wire-level QueryResults shape and extended with 503 backpressure
// and partial-cancel simulation the teacher's mock does not model.
type MockServer struct {
	server *httptest.Server

	mu        sync.Mutex
	templates map[string]*QueryTemplate
	active    map[string]*activeQuery

	queryIDCounter atomic.Int64

	cancelMu sync.Mutex
	cancel   CancelBehavior
}

// NewMockServer starts a MockServer listening on a loopback address.
// Call Close when done.
func NewMockServer() *MockServer {
	m := &MockServer{
		templates: map[string]*QueryTemplate{},
		active:    map[string]*activeQuery{},
		cancel:    CancelBehavior{StatusCode: http.StatusNoContent},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/statement", m.handleSubmit)
	mux.HandleFunc("/v1/statement/", m.handlePaging)
	mux.HandleFunc("/v1/cancel/", m.handlePartialCancel)
	m.server = httptest.NewServer(mux)
	return m
}

// URL is the mock server's base address, suitable for NewClientSession.
func (m *MockServer) URL() string { return m.server.URL }

// Close shuts the mock server down.
func (m *MockServer) Close() { m.server.Close() }

// AddQuery registers a template keyed by its exact SQL text.
func (m *MockServer) AddQuery(t *QueryTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.SQL] = t
}

// SetCancelBehavior controls how the partial-cancel endpoint responds
// to every subsequent DELETE, regardless of which query it targets.
func (m *MockServer) SetCancelBehavior(b CancelBehavior) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	m.cancel = b
}

func (m *MockServer) newQueryID() string {
	return fmt.Sprintf("mock_query_%d", m.queryIDCounter.Add(1))
}

// wireResult mirrors the coordinator's page JSON shape exactly; it
// exists here (rather than reusing presto.QueryResults, whose Data
// field is excluded from JSON) because the mock must emit the same
// bytes a real coordinator would.
type wireResult struct {
	ID               string                `json:"id"`
	InfoURI          string                `json:"infoUri"`
	PartialCancelURI string                `json:"partialCancelUri,omitempty"`
	NextURI          string                `json:"nextUri,omitempty"`
	Columns          []*presto.Column      `json:"columns,omitempty"`
	Data             [][]any               `json:"data,omitempty"`
	Stats            presto.StatementStats `json:"stats"`
	Error            *presto.QueryError    `json:"error,omitempty"`
	Warnings         []presto.Warning      `json:"warnings,omitempty"`
}

func (m *MockServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	buf, _ := io.ReadAll(r.Body)
	sql := strings.TrimSpace(string(buf))

	m.mu.Lock()
	tmpl, ok := m.templates[sql]
	m.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf("mock server: no template registered for query %q", sql), http.StatusBadRequest)
		return
	}

	aq := &activeQuery{template: tmpl, id: m.newQueryID(), failuresLeft: tmpl.FailuresBeforeSuccess}
	m.mu.Lock()
	m.active[aq.id] = aq
	m.mu.Unlock()

	m.respond(w, aq, true)
}

func (m *MockServer) handlePaging(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegment(r.URL.Path)

	m.mu.Lock()
	aq, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		http.Error(w, "unknown query id", http.StatusNotFound)
		return
	}

	if r.Method == http.MethodDelete {
		aq.mu.Lock()
		aq.cancelled = true
		aq.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	aq.mu.Lock()
	if aq.failuresLeft > 0 {
		aq.failuresLeft--
		aq.mu.Unlock()
		if aq.template.Latency > 0 {
			time.Sleep(aq.template.Latency)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	aq.mu.Unlock()

	m.respond(w, aq, false)
}

func (m *MockServer) handlePartialCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.cancelMu.Lock()
	behavior := m.cancel
	m.cancelMu.Unlock()

	if behavior.Hang {
		<-r.Context().Done()
		return
	}
	if behavior.Delay > 0 {
		time.Sleep(behavior.Delay)
	}
	status := behavior.StatusCode
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

// respond builds and writes the next page for aq, advancing its
// internal batch cursor. first is true only for the response to the
// initial POST, which alone carries session-mutation headers. The first
// QueueBatches pages, counted from that response, are QUEUED pages.
func (m *MockServer) respond(w http.ResponseWriter, aq *activeQuery, first bool) {
	if aq.template.Latency > 0 {
		time.Sleep(aq.template.Latency)
	}

	aq.mu.Lock()
	idx := aq.batchIndex
	aq.batchIndex++
	cancelled := aq.cancelled
	aq.mu.Unlock()

	if first {
		for key, value := range aq.template.SetSessionHeaders {
			w.Header().Add(presto.SetSessionHeader, key+"="+value)
		}
	}

	res := wireResult{
		ID:               aq.id,
		InfoURI:          m.server.URL + "/v1/query/" + aq.id,
		PartialCancelURI: m.server.URL + "/v1/cancel/" + aq.id,
	}

	queueBatches := aq.template.QueueBatches
	if cancelled {
		res.Error = &presto.QueryError{Message: "Query was cancelled", ErrorName: "USER_CANCELLED", ErrorType: "USER_ERROR"}
		res.Stats.State = "FAILED"
		writeJSON(w, res)
		return
	}

	if idx < queueBatches {
		res.Stats.State = "QUEUED"
		res.Stats.Queued = true
		res.NextURI = m.server.URL + "/v1/statement/" + aq.id + "?batch=" + strconv.Itoa(idx+1)
		writeJSON(w, res)
		return
	}

	dataIdx := idx - queueBatches
	batches := aq.template.DataBatches
	if batches < 1 {
		batches = 1
	}

	res.Columns = aq.template.Columns
	res.Stats.State = "RUNNING"

	rowsPerBatch := (len(aq.template.Data) + batches - 1) / batches
	if rowsPerBatch < 1 {
		rowsPerBatch = 1
	}
	start := dataIdx * rowsPerBatch
	end := start + rowsPerBatch
	if start > len(aq.template.Data) {
		start = len(aq.template.Data)
	}
	if end > len(aq.template.Data) {
		end = len(aq.template.Data)
	}
	if start < end {
		res.Data = aq.template.Data[start:end]
	}

	isLastDataBatch := dataIdx >= batches-1 || end >= len(aq.template.Data)
	if !isLastDataBatch {
		res.NextURI = m.server.URL + "/v1/statement/" + aq.id + "?batch=" + strconv.Itoa(idx+1)
		writeJSON(w, res)
		return
	}

	// Terminal page: no more rows to send, report FINISHED or FAILED.
	if aq.template.Error != nil {
		res.Error = aq.template.Error
		res.Stats.State = "FAILED"
	} else {
		res.Stats.State = "FINISHED"
	}
	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func lastPathSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	seg := path[idx+1:]
	if q := strings.IndexByte(seg, '?'); q >= 0 {
		seg = seg[:q]
	}
	return seg
}
