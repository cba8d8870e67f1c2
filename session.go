package presto

import (
	"fmt"
	"net/url"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// ClientSession is the immutable bundle of inputs that parameterize a
// single statement submission: where to send it, who is sending it, and
// what server-side context (catalog, schema, session properties,
// prepared statements, an in-flight transaction) it should run under.
//
// A ClientSession is built once via NewClientSession and never mutated;
// StatementClient only ever reads from it.
type ClientSession struct {
	server   *url.URL
	user     string
	source   string
	catalog  string
	schema   string
	timeZone string
	language string

	properties         map[string]string
	preparedStatements map[string]string
	transactionID      string // "" means NONE

	clientRequestTimeout time.Duration
	debug                bool
}

// ClientSessionOption configures a ClientSession under construction.
// Grounded on the teacher's RequestOption func(*http.Request) shape,
// generalized to operate on a builder instead of a request.
type ClientSessionOption func(*clientSessionBuilder)

type clientSessionBuilder struct {
	source   string
	catalog  string
	schema   string
	timeZone string
	language string

	properties         map[string]string
	preparedStatements map[string]string
	transactionID      string

	clientRequestTimeout time.Duration
	debug                bool

	err error
}

// defaultClientRequestTimeout mirrors the teacher's default HTTP client
// timeout; it only bounds the per-advance retry loop, not a single
// round trip.
const defaultClientRequestTimeout = 2 * time.Minute

// NewClientSession constructs an immutable ClientSession. server must be
// an absolute URL; user must be non-empty. Unless overridden with
// WithTimeZone/WithLocale, the time zone falls back to the local system
// clock's zone (see localTimeZoneID) and the language to "en-US".
func NewClientSession(server *url.URL, user string, opts ...ClientSessionOption) (*ClientSession, error) {
	if server == nil || !server.IsAbs() {
		return nil, &IllegalStateError{Msg: "NewClientSession: server must be an absolute URL"}
	}
	if user == "" {
		return nil, &IllegalStateError{Msg: "NewClientSession: user must not be empty"}
	}

	b := &clientSessionBuilder{
		timeZone:             localTimeZoneID(),
		language:             localLanguage(),
		properties:           map[string]string{},
		preparedStatements:   map[string]string{},
		clientRequestTimeout: defaultClientRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.err != nil {
		return nil, b.err
	}

	return &ClientSession{
		server:               server,
		user:                 user,
		source:               b.source,
		catalog:              b.catalog,
		schema:               b.schema,
		timeZone:             b.timeZone,
		language:             b.language,
		properties:           b.properties,
		preparedStatements:   b.preparedStatements,
		transactionID:        b.transactionID,
		clientRequestTimeout: b.clientRequestTimeout,
		debug:                b.debug,
	}, nil
}

// WithSource sets the X-Presto-Source header value.
func WithSource(source string) ClientSessionOption {
	return func(b *clientSessionBuilder) { b.source = source }
}

// WithCatalog sets the default catalog.
func WithCatalog(catalog string) ClientSessionOption {
	return func(b *clientSessionBuilder) { b.catalog = catalog }
}

// WithSchema sets the default schema.
func WithSchema(schema string) ClientSessionOption {
	return func(b *clientSessionBuilder) { b.schema = schema }
}

// WithTimeZone overrides the X-Presto-Time-Zone value. Passing an empty
// string is a builder error, since §3 requires it non-empty.
func WithTimeZone(timeZoneID string) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		if timeZoneID == "" {
			b.err = &IllegalStateError{Msg: "WithTimeZone: timeZoneID must not be empty"}
			return
		}
		b.timeZone = timeZoneID
	}
}

// WithLocale overrides the X-Presto-Language value.
func WithLocale(language string) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		if language == "" {
			b.err = &IllegalStateError{Msg: "WithLocale: language must not be empty"}
			return
		}
		b.language = language
	}
}

// WithSessionProperty adds one session property, sent as a
// X-Presto-Session: key=value header.
func WithSessionProperty(key, value string) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		if key == "" {
			b.err = &IllegalStateError{Msg: "WithSessionProperty: key must not be empty"}
			return
		}
		b.properties[key] = value
	}
}

// WithPreparedStatement registers one prepared statement, sent as a
// X-Presto-Prepared-Statement header with both key and value
// URL-encoded.
func WithPreparedStatement(name, sql string) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		if name == "" {
			b.err = &IllegalStateError{Msg: "WithPreparedStatement: name must not be empty"}
			return
		}
		b.preparedStatements[name] = sql
	}
}

// WithTransactionID sets the active transaction id. An empty id is
// equivalent to not calling this option: the wire value falls back to
// the literal NONE.
func WithTransactionID(id string) ClientSessionOption {
	return func(b *clientSessionBuilder) { b.transactionID = id }
}

// WithClientRequestTimeout sets the wall-clock deadline §4.4's advance
// retry loop is bounded by. Must be non-negative.
func WithClientRequestTimeout(d time.Duration) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		if d < 0 {
			b.err = &IllegalStateError{Msg: "WithClientRequestTimeout: duration must be non-negative"}
			return
		}
		b.clientRequestTimeout = d
	}
}

// WithClientRequestTimeoutString parses a human-readable duration
// string (e.g. "30s", "2m") via go-str2duration, the same library the
// teacher uses for human-readable durations in its query_info tooling.
func WithClientRequestTimeoutString(s string) ClientSessionOption {
	return func(b *clientSessionBuilder) {
		d, err := str2duration.ParseDuration(s)
		if err != nil {
			b.err = fmt.Errorf("WithClientRequestTimeoutString: %w", err)
			return
		}
		if d < 0 {
			b.err = &IllegalStateError{Msg: "WithClientRequestTimeoutString: duration must be non-negative"}
			return
		}
		b.clientRequestTimeout = d
	}
}

// WithDebug sets the session debug flag, reported by Debug(). The
// statement client neither reads it nor sends it to the coordinator.
func WithDebug(debug bool) ClientSessionOption {
	return func(b *clientSessionBuilder) { b.debug = debug }
}

// Server returns the coordinator base URI this session submits to.
func (s *ClientSession) Server() *url.URL { return s.server }

// User returns the session's identity header value.
func (s *ClientSession) User() string { return s.user }

// Source returns the X-Presto-Source header value, or "" if unset.
func (s *ClientSession) Source() string { return s.source }

// Catalog returns the default catalog, or "" if unset.
func (s *ClientSession) Catalog() string { return s.catalog }

// Schema returns the default schema, or "" if unset.
func (s *ClientSession) Schema() string { return s.schema }

// TimeZoneID returns the X-Presto-Time-Zone header value.
func (s *ClientSession) TimeZoneID() string { return s.timeZone }

// Language returns the X-Presto-Language header value.
func (s *ClientSession) Language() string { return s.language }

// TransactionID returns the originally-configured transaction id, or
// "" if the session was built without one.
func (s *ClientSession) TransactionID() string { return s.transactionID }

// ClientRequestTimeout returns the wall-clock deadline bounding a
// single advance's retry loop.
func (s *ClientSession) ClientRequestTimeout() time.Duration { return s.clientRequestTimeout }

// Debug reports whether the session was built with WithDebug(true).
func (s *ClientSession) Debug() bool { return s.debug }

// Properties returns a defensive copy of the session properties map.
func (s *ClientSession) Properties() map[string]string {
	return copyStringMap(s.properties)
}

// PreparedStatements returns a defensive copy of the prepared
// statements map.
func (s *ClientSession) PreparedStatements() map[string]string {
	return copyStringMap(s.preparedStatements)
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// localTimeZoneID returns the local system clock's zone abbreviation as
// reported by time.Now().Zone() (e.g. "CET"), or "UTC" when that name is
// empty or "UTC" or the current offset is zero.
func localTimeZoneID() string {
	name, offset := time.Now().Zone()
	if name == "" || name == "UTC" {
		return "UTC"
	}
	if offset == 0 {
		return "UTC"
	}
	return name
}

// localLanguage is the fallback locale language tag when the caller
// does not supply one via WithLocale.
func localLanguage() string { return "en-US" }
