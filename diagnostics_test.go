package presto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagnosticsTestSession(t *testing.T, srv *httptest.Server) *ClientSession {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	s, err := NewClientSession(u, "alice")
	require.NoError(t, err)
	return s
}

func TestGetClusterInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cluster", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get(UserHeader))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"runningQueries": 3, "activeWorkers": 5}`))
	}))
	defer srv.Close()

	stats, err := GetClusterInfo(context.Background(), NewHTTPPort(nil), diagnosticsTestSession(t, srv))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RunningQueries)
	assert.Equal(t, 5, stats.ActiveWorkers)
}

func TestGetClusterInfo_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := GetClusterInfo(context.Background(), NewHTTPPort(nil), diagnosticsTestSession(t, srv))
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestGetQueryState_WithOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/queryState", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeAllQueries"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"queryId": "q1", "queryState": "RUNNING"}]`))
	}))
	defer srv.Close()

	includeAll := true
	infos, err := GetQueryState(context.Background(), NewHTTPPort(nil), diagnosticsTestSession(t, srv),
		&GetQueryStateOptions{IncludeAllQueries: &includeAll})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "q1", infos[0].QueryID)
	assert.Equal(t, "RUNNING", infos[0].QueryState)
}

func TestGenerateQueryParameters_SkipsNilFields(t *testing.T) {
	user := "bob"
	params := generateQueryParameters(&GetQueryStateOptions{User: &user})
	assert.Equal(t, "user=bob", params)
}

func TestExecuteDiagnosticRequest_RequiresRawHTTPExecutor(t *testing.T) {
	_, _, _, err := executeDiagnosticRequest(fakePort{}, &http.Request{})
	require.Error(t, err)
}

type fakePort struct{}

func (fakePort) Execute(ctx context.Context, req *http.Request) (ResponseEnvelope[*QueryResults], error) {
	return ResponseEnvelope[*QueryResults]{}, nil
}
func (fakePort) ExecuteAsync(ctx context.Context, req *http.Request) AsyncHandle { return nil }
