package presto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"
)

// ClusterStats reports coordinator-wide activity, as returned by
// GET /v1/cluster. A coordinator-admin endpoint, not part of the
// statement protocol, retained here so HTTPPort has a second, simpler
// caller to exercise besides the statement client. Grounded on the
// teacher's cluster.go.
type ClusterStats struct {
	RunningQueries    int     `json:"runningQueries"`
	BlockedQueries    int     `json:"blockedQueries"`
	QueuedQueries     int     `json:"queuedQueries"`
	ActiveWorkers     int     `json:"activeWorkers"`
	RunningDrivers    int     `json:"runningDrivers"`
	RunningTasks      int     `json:"runningTasks"`
	ReservedMemory    float64 `json:"reservedMemory"`
	TotalInputRows    int64   `json:"totalInputRows"`
	TotalInputBytes   int64   `json:"totalInputBytes"`
	TotalCPUTimeSecs  int     `json:"totalCpuTimeSecs"`
	AdjustedQueueSize int     `json:"adjustedQueueSize"`
}

// GetClusterInfo retrieves cluster statistics from /v1/cluster.
func GetClusterInfo(ctx context.Context, port HTTPPort, session *ClientSession) (*ClusterStats, error) {
	u := session.Server().ResolveReference(&url.URL{Path: "/v1/cluster"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("presto: failed to build cluster info request: %w", err)
	}
	applyDiagnosticHeaders(req, session)

	body, statusCode, statusMessage, err := executeDiagnosticRequest(port, req)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, &ProtocolError{Task: "fetching cluster info", StatusCode: statusCode, StatusMessage: statusMessage, Body: body}
	}

	var stats ClusterStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, &ProtocolError{Task: "decoding cluster info", StatusCode: statusCode, StatusMessage: statusMessage, Body: body}
	}
	return &stats, nil
}

// QueryStateInfo describes one query's state, as returned by
// GET /v1/queryState.
type QueryStateInfo struct {
	QueryID    string          `json:"queryId"`
	QueryState string          `json:"queryState"`
	CreateTime time.Time       `json:"createTime"`
	ErrorCode  QueryStateError `json:"errorCode"`
}

// QueryStateError describes the error associated with one
// QueryStateInfo entry, if any.
type QueryStateError struct {
	Code      int    `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Retriable bool   `json:"retriable"`
}

// GetQueryStateOptions parameterizes GET /v1/queryState. Nil pointer
// fields are omitted from the query string.
type GetQueryStateOptions struct {
	User                         *string `query:"user"`
	IncludeLocalQueryOnly        *bool   `query:"includeLocalQueryOnly"`
	IncludeAllQueries            *bool   `query:"includeAllQueries"`
	IncludeAllQueryProgressStats *bool   `query:"includeAllQueryProgressStats"`
	ExcludeResourceGroupPathInfo *bool   `query:"excludeResourceGroupPathInfo"`
	QueryTextSizeLimit           *int    `query:"queryTextSizeLimit"`
}

// generateQueryParameters converts a struct tagged with `query` into a
// URL query string, skipping nil pointer fields. Grounded on the
// teacher's GenerateHttpQueryParameter, unchanged in approach.
func generateQueryParameters(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ""
	}

	var b strings.Builder
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		fv, ft := rv.Field(i), rt.Field(i)
		skip := false
		for fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface {
			if fv.IsNil() {
				skip = true
				break
			}
			fv = fv.Elem()
		}
		if skip || !fv.IsValid() || !fv.CanInterface() {
			continue
		}
		tag := ft.Tag.Get("query")
		if tag == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(tag))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(fmt.Sprint(fv.Interface())))
	}
	return b.String()
}

// GetQueryState retrieves query state entries from /v1/queryState.
func GetQueryState(ctx context.Context, port HTTPPort, session *ClientSession, opts *GetQueryStateOptions) ([]QueryStateInfo, error) {
	u := session.Server().ResolveReference(&url.URL{Path: "/v1/queryState"})
	if opts != nil {
		if params := generateQueryParameters(opts); params != "" {
			u.RawQuery = params
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("presto: failed to build query state request: %w", err)
	}
	applyDiagnosticHeaders(req, session)

	body, statusCode, statusMessage, err := executeDiagnosticRequest(port, req)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, &ProtocolError{Task: "fetching query state", StatusCode: statusCode, StatusMessage: statusMessage, Body: body}
	}

	var infos []QueryStateInfo
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, &ProtocolError{Task: "decoding query state", StatusCode: statusCode, StatusMessage: statusMessage, Body: body}
	}
	return infos, nil
}

func applyDiagnosticHeaders(req *http.Request, session *ClientSession) {
	req.Header.Set(UserHeader, session.User())
	req.Header.Set("User-Agent", UserAgentPrefix+"/"+ClientVersion)
}

// executeDiagnosticRequest runs a non-statement GET through the same
// HTTPPort the statement client uses, reusing its JSON-page decode
// path would be wrong here (these endpoints are not QueryResults), so
// it executes via the underlying *http.Client a statementtest server
// or production HTTPPort implementation wraps.
func executeDiagnosticRequest(port HTTPPort, req *http.Request) ([]byte, int, string, error) {
	plain, ok := port.(RawHTTPExecutor)
	if !ok {
		return nil, 0, "", fmt.Errorf("presto: HTTPPort %T does not support raw diagnostic requests", port)
	}
	return plain.ExecuteRaw(req)
}
