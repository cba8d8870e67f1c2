package presto

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPPort is the narrow transport abstraction the statement client is
// built on: synchronous execution that decodes a response into a
// ResponseEnvelope, and fire-and-forget asynchronous execution used by
// partial cancel and close. Grounded on the teacher's Session.Do /
// Client.decodeResponseBody, split into the synchronous/async pair
// §4.5 requires.
type HTTPPort interface {
	// Execute runs req synchronously and, for a 200 response, decodes
	// the body as a JSON *QueryResults page. A transport-level failure (not an HTTP error
	// status) is returned as err; HTTP-level failures are reported via
	// the envelope's status fields, not err.
	Execute(ctx context.Context, req *http.Request) (ResponseEnvelope[*QueryResults], error)

	// ExecuteAsync fires req without waiting for the caller to consume
	// the body, returning a handle whose Await blocks (bounded by the
	// caller-supplied context/timeout) until the response status is
	// known.
	ExecuteAsync(ctx context.Context, req *http.Request) AsyncHandle
}

// AsyncHandle represents an in-flight asynchronous request.
type AsyncHandle interface {
	// Await blocks until the request completes or ctx is done,
	// returning the resulting status code (or an error on timeout or
	// transport failure).
	Await(ctx context.Context) (int, error)
}

// RawHTTPExecutor is an optional capability an HTTPPort may implement
// to serve non-statement-protocol requests (the coordinator-admin
// diagnostics endpoints) through the same underlying transport.
type RawHTTPExecutor interface {
	ExecuteRaw(req *http.Request) (body []byte, statusCode int, statusMessage string, err error)
}

// httpPort is the default net/http-based HTTPPort implementation.
type httpPort struct {
	client *http.Client
}

// NewHTTPPort wraps an *http.Client as an HTTPPort. Passing nil uses
// http.DefaultClient.
func NewHTTPPort(client *http.Client) HTTPPort {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpPort{client: client}
}

func (p *httpPort) Execute(ctx context.Context, req *http.Request) (ResponseEnvelope[*QueryResults], error) {
	req = req.WithContext(ctx)

	resp, err := p.client.Do(req)
	if err != nil {
		return ResponseEnvelope[*QueryResults]{}, err
	}
	defer resp.Body.Close()

	body, err := decompressBody(resp)
	if err != nil {
		return ResponseEnvelope[*QueryResults]{}, err
	}

	env := ResponseEnvelope[*QueryResults]{
		StatusCode:    resp.StatusCode,
		StatusMessage: resp.Status,
		Header:        resp.Header,
		Body:          body,
	}

	if resp.StatusCode != http.StatusOK {
		return env, nil
	}

	qr, decodeErr := decodeQueryResults(body)
	env.Decoded = true
	if decodeErr != nil {
		log.Debug().Err(decodeErr).Msg("failed to decode query results page")
		env.DecodeErr = decodeErr
		return env, nil
	}
	env.Value = qr
	return env, nil
}

// ExecuteRaw runs req synchronously and returns its decompressed body
// and status, without attempting to decode it as a QueryResults page.
func (p *httpPort) ExecuteRaw(req *http.Request) ([]byte, int, string, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	body, err := decompressBody(resp)
	if err != nil {
		return nil, 0, "", err
	}
	return body, resp.StatusCode, resp.Status, nil
}

func decompressBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("presto: failed to open gzip response: %w", err)
		}
		defer func() {
			if cErr := gz.Close(); cErr != nil {
				log.Debug().Err(cErr).Msg("failed to close gzip reader")
			}
		}()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("presto: failed to read response body: %w", err)
	}
	return body, nil
}

func (p *httpPort) ExecuteAsync(ctx context.Context, req *http.Request) AsyncHandle {
	h := &asyncHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		resp, err := p.client.Do(req.WithContext(ctx))
		if err != nil {
			h.err = err
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		h.statusCode = resp.StatusCode
	}()
	return h
}

type asyncHandle struct {
	done       chan struct{}
	statusCode int
	err        error
}

func (h *asyncHandle) Await(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.statusCode, h.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// requestTimeoutDeadline computes the wall-clock deadline for an
// advance retry loop: the moment requestTimeout elapses from now. The
// statement client uses a monotonic clock (time.Time's internal
// monotonic reading) per §9's "do not trust wall-clock time" note.
func requestTimeoutDeadline(requestTimeout time.Duration) time.Time {
	return time.Now().Add(requestTimeout)
}
