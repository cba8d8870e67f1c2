package presto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// StatementClient is the state machine at the core of this package: it
// posts a query, advances page by page via the nextUri redirection
// chain, retries transient 503 backpressure under a wall-clock
// deadline, and harvests session mutations (session properties,
// prepared statements, transaction id) from response headers.
//
// A StatementClient is safe for concurrent use by multiple goroutines
// reading Current/IsValid/session-mutation snapshots while one
// goroutine drives Advance, per §5. Advance itself must not be called
// concurrently with itself.
//
// Grounded directly on the Java StatementClient this package's wire
// protocol was distilled from: currentResults is an atomic pointer,
// the mutation bags are guarded by a single mutex (an allowed
// alternative to per-field concurrent maps per §9), and advance's
// retry loop follows the same i*100ms-capped-by-remaining-deadline
// backoff schedule.
type StatementClient struct {
	port    HTTPPort
	session *ClientSession

	currentResults atomic.Pointer[QueryResults]

	mu                            sync.Mutex
	setSessionProperties          map[string]string
	resetSessionProperties        map[string]struct{}
	addedPreparedStatements       map[string]string
	deallocatedPreparedStatements map[string]struct{}

	startedTransactionID atomic.Pointer[string]
	clearTransactionID   atomic.Bool

	valid  atomic.Bool
	closed atomic.Bool
	gone   atomic.Bool
}

// Submit posts query to session.Server()/v1/statement over port and
// returns a StatementClient positioned at the first page. See §4.4
// Construction.
func Submit(ctx context.Context, port HTTPPort, session *ClientSession, query string) (*StatementClient, error) {
	c := &StatementClient{
		port:                          port,
		session:                       session,
		setSessionProperties:          map[string]string{},
		resetSessionProperties:        map[string]struct{}{},
		addedPreparedStatements:       map[string]string{},
		deallocatedPreparedStatements: map[string]struct{}{},
	}

	req, err := c.buildInitialRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	env, err := port.Execute(ctx, req)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if env.StatusCode != http.StatusOK || !env.HasValue() {
		return nil, &ProtocolError{Task: "starting query", StatusCode: env.StatusCode, StatusMessage: env.StatusMessage, Body: env.Body}
	}

	if err := c.processResponse(env.Header, env.Value); err != nil {
		return nil, err
	}
	c.valid.Store(true)
	return c, nil
}

// Advance pulls the next page following §4.4. It returns false (with
// a nil error) exactly when the prior page's NextURI is empty or the
// client has been closed, in which case IsValid becomes false.
func (c *StatementClient) Advance(ctx context.Context) (bool, error) {
	current := c.currentResults.Load()
	if current.NextURI == "" || c.closed.Load() {
		c.valid.Store(false)
		return false, nil
	}

	deadline := requestTimeoutDeadline(c.session.ClientRequestTimeout())
	var lastErr error

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				c.gone.Store(true)
				return false, &TransportError{Cause: lastErr}
			}
			sleep := time.Duration(attempt-1) * 100 * time.Millisecond
			if sleep > remaining {
				sleep = remaining
			}
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				c.Close()
				return false, ctx.Err()
			}
		}

		if c.closed.Load() {
			c.gone.Store(true)
			return false, &TransportError{Cause: lastErr}
		}
		if !time.Now().Before(deadline) {
			c.gone.Store(true)
			return false, &TransportError{Cause: lastErr}
		}

		req, err := c.buildNextRequest(ctx, current.NextURI)
		if err != nil {
			return false, err
		}

		env, err := c.port.Execute(ctx, req)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("transport error fetching next page, retrying")
			lastErr = err
			continue
		}

		switch {
		case env.StatusCode == http.StatusOK && env.HasValue():
			if err := c.processResponse(env.Header, env.Value); err != nil {
				c.gone.Store(true)
				return false, err
			}
			return true, nil
		case env.StatusCode == http.StatusServiceUnavailable:
			log.Debug().Int("attempt", attempt).Msg("503 backpressure fetching next page, retrying")
			lastErr = &ProtocolError{Task: "fetching next", StatusCode: env.StatusCode, StatusMessage: env.StatusMessage, Body: env.Body}
			continue
		default:
			c.gone.Store(true)
			return false, &ProtocolError{Task: "fetching next", StatusCode: env.StatusCode, StatusMessage: env.StatusMessage, Body: env.Body}
		}
	}
}

// processResponse harvests session-mutation headers and replaces
// currentResults last, so that any reader observing the new page also
// observes every mutation that arrived with it (§5).
func (c *StatementClient) processResponse(headers http.Header, results *QueryResults) error {
	c.mu.Lock()
	for _, raw := range headers.Values(SetSessionHeader) {
		key, value, ok := splitFirstEquals(raw)
		if !ok {
			log.Debug().Str("header", raw).Msg("dropping X-Presto-Set-Session entry missing '='")
			continue
		}
		c.setSessionProperties[key] = value
	}
	for _, name := range headers.Values(ClearSessionHeader) {
		c.resetSessionProperties[name] = struct{}{}
	}
	c.mu.Unlock()

	for _, raw := range headers.Values(AddedPrepareHeader) {
		key, value, ok := splitFirstEquals(raw)
		if !ok {
			continue
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return &ProtocolError{Task: "decoding X-Presto-Added-Prepare", StatusMessage: err.Error()}
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return &ProtocolError{Task: "decoding X-Presto-Added-Prepare", StatusMessage: err.Error()}
		}
		c.mu.Lock()
		c.addedPreparedStatements[decodedKey] = decodedValue
		c.mu.Unlock()
	}
	for _, raw := range headers.Values(DeallocatedPrepareHeader) {
		decoded, err := url.QueryUnescape(raw)
		if err != nil {
			return &ProtocolError{Task: "decoding X-Presto-Deallocated-Prepare", StatusMessage: err.Error()}
		}
		c.mu.Lock()
		c.deallocatedPreparedStatements[decoded] = struct{}{}
		c.mu.Unlock()
	}

	if id := headers.Get(StartedTransactionIDHeader); id != "" {
		c.startedTransactionID.Store(&id)
	}
	if headers.Get(ClearTransactionIDHeader) != "" {
		c.clearTransactionID.Store(true)
	}

	c.currentResults.Store(results)
	return nil
}

func splitFirstEquals(s string) (key, value string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}

// CancelLeafStage requests cancellation of the current page's leaf
// stage. Usable only when the client is not closed. Returns false if
// the current page has no PartialCancelURI, if the server responds
// with a non-2xx status, or if timeout elapses before a response
// arrives. Never mutates lifecycle flags (§4.4 Partial cancel).
func (c *StatementClient) CancelLeafStage(ctx context.Context, timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, &IllegalStateError{Msg: "CancelLeafStage: client is closed"}
	}

	current := c.currentResults.Load()
	if current == nil || current.PartialCancelURI == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, current.PartialCancelURI, nil)
	if err != nil {
		return false, err
	}
	c.applyIdentityHeaders(req)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := c.port.ExecuteAsync(waitCtx, req).Await(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Debug().Str("query_id", current.ID).Msg("cancelLeafStage wait timed out")
			return false, nil
		}
		return false, &TransportError{Cause: err}
	}
	return status >= 200 && status < 300, nil
}

// Close is idempotent. On the first call it marks the client closed
// and, if the current page has a NextURI, fires a best-effort
// asynchronous DELETE to release server resources without awaiting it
// or checking its status. Subsequent calls are no-ops.
func (c *StatementClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	current := c.currentResults.Load()
	if current == nil || current.NextURI == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, current.NextURI, nil)
	if err != nil {
		log.Debug().Err(err).Msg("failed to build close-time cleanup request")
		return nil
	}
	c.applyIdentityHeaders(req)
	c.port.ExecuteAsync(context.Background(), req)
	return nil
}

// IsValid reports valid AND NOT gone AND NOT closed.
func (c *StatementClient) IsValid() bool {
	return c.valid.Load() && !c.gone.Load() && !c.closed.Load()
}

// IsGone reports whether the client has observed a terminal,
// non-retriable failure.
func (c *StatementClient) IsGone() bool { return c.gone.Load() }

// IsClosed reports whether Close has been called.
func (c *StatementClient) IsClosed() bool { return c.closed.Load() }

// IsFailed reports whether the current page carries a server-reported
// query error.
func (c *StatementClient) IsFailed() bool {
	r := c.currentResults.Load()
	return r != nil && r.Error != nil
}

// Current returns the latest page. Requires IsValid(); violating this
// is a programming error surfaced as *IllegalStateError.
func (c *StatementClient) Current() (*QueryResults, error) {
	if !c.IsValid() {
		return nil, &IllegalStateError{Msg: "Current: client is not valid"}
	}
	return c.currentResults.Load(), nil
}

// FinalResults returns the terminal page. Requires NOT IsValid() OR
// IsFailed(); violating this is a programming error surfaced as
// *IllegalStateError.
func (c *StatementClient) FinalResults() (*QueryResults, error) {
	if c.IsValid() && !c.IsFailed() {
		return nil, &IllegalStateError{Msg: "FinalResults: client is still valid"}
	}
	return c.currentResults.Load(), nil
}

// SetSessionProperties returns a snapshot of session properties the
// server has asked the caller to set.
func (c *StatementClient) SetSessionProperties() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyStringMap(c.setSessionProperties)
}

// ResetSessionProperties returns a snapshot of session property names
// the server has asked the caller to clear.
func (c *StatementClient) ResetSessionProperties() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.resetSessionProperties))
	for name := range c.resetSessionProperties {
		out = append(out, name)
	}
	return out
}

// AddedPreparedStatements returns a snapshot of prepared statements
// the server has asked the caller to register.
func (c *StatementClient) AddedPreparedStatements() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyStringMap(c.addedPreparedStatements)
}

// DeallocatedPreparedStatements returns a snapshot of prepared
// statement names the server has asked the caller to forget.
func (c *StatementClient) DeallocatedPreparedStatements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.deallocatedPreparedStatements))
	for name := range c.deallocatedPreparedStatements {
		out = append(out, name)
	}
	return out
}

// StartedTransactionID returns the transaction id the server most
// recently started on behalf of this client, if any.
func (c *StatementClient) StartedTransactionID() (string, bool) {
	p := c.startedTransactionID.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// IsClearTransactionID reports whether the server has asked the
// caller to clear its transaction id.
func (c *StatementClient) IsClearTransactionID() bool {
	return c.clearTransactionID.Load()
}

func (c *StatementClient) buildInitialRequest(ctx context.Context, query string) (*http.Request, error) {
	u := c.session.Server().ResolveReference(&url.URL{Path: "/v1/statement"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("presto: failed to build initial request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.applyFullHeaders(req)
	return req, nil
}

func (c *StatementClient) buildNextRequest(ctx context.Context, nextURI string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURI, nil)
	if err != nil {
		return nil, fmt.Errorf("presto: failed to build next-page request: %w", err)
	}
	c.applyIdentityHeaders(req)
	return req, nil
}

// applyIdentityHeaders sets the headers carried on every request:
// identity, locale, and the current transaction id. Used alone for
// paging requests per §4.4's "identity headers only".
func (c *StatementClient) applyIdentityHeaders(req *http.Request) {
	req.Header.Set(UserHeader, c.session.User())
	req.Header.Set("User-Agent", UserAgentPrefix+"/"+ClientVersion)
	req.Header.Set(TimeZoneHeader, c.session.TimeZoneID())
	req.Header.Set(LanguageHeader, c.session.Language())
	req.Header.Set(TransactionHeader, c.currentTransactionIDHeaderValue())
}

// applyFullHeaders additionally carries context and session-mutation
// headers, used only for the initial submit.
func (c *StatementClient) applyFullHeaders(req *http.Request) {
	c.applyIdentityHeaders(req)

	if source := c.session.Source(); source != "" {
		req.Header.Set(SourceHeader, source)
	}
	if catalog := c.session.Catalog(); catalog != "" {
		req.Header.Set(CatalogHeader, catalog)
	}
	if schema := c.session.Schema(); schema != "" {
		req.Header.Set(SchemaHeader, schema)
	}
	for key, value := range c.session.Properties() {
		req.Header.Add(SessionHeader, fmt.Sprintf("%s=%s", key, value))
	}
	for key, value := range c.session.PreparedStatements() {
		req.Header.Add(PreparedStatementHeader, fmt.Sprintf("%s=%s", url.QueryEscape(key), url.QueryEscape(value)))
	}
}

// currentTransactionIDHeaderValue computes the transaction id to send
// on the next request: cleared beats started beats the session's
// original id beats NoTransactionID.
func (c *StatementClient) currentTransactionIDHeaderValue() string {
	if c.clearTransactionID.Load() {
		return NoTransactionID
	}
	if p := c.startedTransactionID.Load(); p != nil {
		return *p
	}
	if id := c.session.TransactionID(); id != "" {
		return id
	}
	return NoTransactionID
}
