package presto_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	presto "github.com/prestosql-oss/statement-client"
	"github.com/prestosql-oss/statement-client/statementtest"
)

func newTestSession(t *testing.T, rawURL string, opts ...presto.ClientSessionOption) *presto.ClientSession {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	s, err := presto.NewClientSession(u, "alice", opts...)
	require.NoError(t, err)
	return s
}

// Scenario A: happy path, two data pages; the second is the terminal
// page and has no NextURI.
func TestStatementClient_HappyPathTwoPages(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:         "SELECT * FROM t",
		Columns:     []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:        [][]any{{1}, {2}, {3}, {4}},
		DataBatches: 2,
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT * FROM t")
	require.NoError(t, err)
	defer client.Close()

	var allRows []presto.Row
	for {
		page, err := client.Current()
		require.NoError(t, err)
		allRows = append(allRows, page.Data...)

		more, err := client.Advance(ctx)
		require.NoError(t, err)
		if !more {
			break
		}
	}

	assert.Len(t, allRows, 4)
	assert.False(t, client.IsValid())
	assert.False(t, client.IsFailed())

	final, err := client.FinalResults()
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", final.Stats.State)
}

// Scenario B: three 503s then success within the deadline.
func TestStatementClient_RetriesThrough503(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:                   "SELECT 1",
		Columns:               []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:                  [][]any{{1}},
		QueueBatches:          1,
		FailuresBeforeSuccess: 3,
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL(), presto.WithClientRequestTimeout(10*time.Second))
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT 1")
	require.NoError(t, err)
	defer client.Close()

	more, err := client.Advance(ctx)
	require.NoError(t, err)
	assert.True(t, more)

	more, err = client.Advance(ctx)
	require.NoError(t, err)
	assert.False(t, more)

	final, err := client.FinalResults()
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", final.Stats.State)
}

// Scenario C: constant 503 backpressure exhausts the deadline and
// surfaces a TransportError.
func TestStatementClient_DeadlineExceededUnder503(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:                   "SELECT 1",
		Columns:               []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:                  [][]any{{1}},
		QueueBatches:          1,
		FailuresBeforeSuccess: 1000,
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL(), presto.WithClientRequestTimeout(300*time.Millisecond))
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT 1")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Advance(ctx)
	require.Error(t, err)
	var transportErr *presto.TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.True(t, client.IsGone())
}

// Scenario D: session-mutation headers on the first page are harvested
// and observable after Submit.
func TestStatementClient_HarvestsSessionMutationHeaders(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:               "SET SESSION foo = 'bar'",
		SetSessionHeaders: map[string]string{"foo": "bar"},
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SET SESSION foo = 'bar'")
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "bar", client.SetSessionProperties()["foo"])
}

// Scenario F: partial cancel returns true on a 2xx response and false
// when the server never responds before the caller's timeout.
func TestStatementClient_CancelLeafStage(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:         "SELECT * FROM t",
		Columns:     []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:        [][]any{{1}, {2}},
		DataBatches: 2,
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT * FROM t")
	require.NoError(t, err)
	defer client.Close()

	mock.SetCancelBehavior(statementtest.CancelBehavior{StatusCode: 204})
	ok, err := client.CancelLeafStage(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.SetCancelBehavior(statementtest.CancelBehavior{Hang: true})
	ok, err = client.CancelLeafStage(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatementClient_CloseIsIdempotent(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:         "SELECT 1",
		Columns:     []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:        [][]any{{1}, {2}},
		DataBatches: 2,
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())

	// Advance on a closed client must return (false, nil), not an
	// error, even though the prior page still has a NextURI.
	more, err := client.Advance(ctx)
	require.NoError(t, err)
	assert.False(t, more)
	assert.False(t, client.IsValid())
}

func TestStatementClient_CurrentRequiresValid(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:     "SELECT 1",
		Columns: []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:    [][]any{{1}},
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT 1")
	require.NoError(t, err)
	defer client.Close()

	more, err := client.Advance(ctx)
	require.NoError(t, err)
	require.False(t, more)

	_, err = client.Current()
	require.Error(t, err)
	var stateErr *presto.IllegalStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestStatementClient_QueryFailure(t *testing.T) {
	mock := statementtest.NewMockServer()
	defer mock.Close()

	mock.AddQuery(&statementtest.QueryTemplate{
		SQL:     "SELECT bad",
		Columns: []*presto.Column{{Name: "a", Type: "bigint"}},
		Data:    [][]any{{1}},
		Error:   &presto.QueryError{Message: "column not found", ErrorName: "COLUMN_NOT_FOUND"},
	})

	ctx := context.Background()
	session := newTestSession(t, mock.URL())
	port := presto.NewHTTPPort(nil)

	client, err := presto.Submit(ctx, port, session, "SELECT bad")
	require.NoError(t, err)
	defer client.Close()

	more, err := client.Advance(ctx)
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, client.IsFailed())

	final, err := client.FinalResults()
	require.NoError(t, err)
	require.NotNil(t, final.Error)
	assert.Equal(t, "COLUMN_NOT_FOUND", final.Error.ErrorName)
}
