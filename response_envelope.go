package presto

import "net/http"

// ResponseEnvelope is a typed view over an HTTP response: its status,
// its headers (case-insensitive by net/http.Header's own semantics),
// the raw body bytes, and either a decoded value of type T or the
// error encountered while decoding it.
//
// Grounded on the teacher's decodeResponseBody, generalized into a
// reusable generic wrapper per §4.3.
type ResponseEnvelope[T any] struct {
	StatusCode    int
	StatusMessage string
	Header        http.Header
	Body          []byte

	Value     T
	Decoded   bool
	DecodeErr error
}

// HasValue reports whether decoding into Value was attempted and
// succeeded. A response whose body was never decoded (e.g. a non-200
// status the caller handles via StatusCode instead) reports false here
// even though DecodeErr is nil.
func (r ResponseEnvelope[T]) HasValue() bool { return r.Decoded && r.DecodeErr == nil }
