package presto

import "encoding/json"

// Row is one row of a QueryResults page: a finite ordered list of
// already-typed values, one per column.
type Row []any

// QueryResults is one page of a query's results, as returned by the
// coordinator from either the initial POST or a subsequent GET of
// NextUri. It is immutable once constructed by the statement client.
//
// Invariant: when Data is non-nil, Columns is non-nil and
// len(row) == len(Columns) for every row in Data.
type QueryResults struct {
	// ID is the server-assigned query identifier.
	ID string `json:"id"`

	// InfoURI is a URI with human-readable information about the query.
	InfoURI string `json:"infoUri"`

	// PartialCancelURI, if present, can be DELETEd to cancel the
	// current leaf stage without ending the whole query.
	PartialCancelURI string `json:"partialCancelUri,omitempty"`

	// NextURI, if present, is the absolute URI to GET for the next
	// page. Its absence marks end of stream.
	NextURI string `json:"nextUri,omitempty"`

	// Columns describes the shape of each row in Data. Present
	// whenever Data is present.
	Columns []*Column `json:"columns,omitempty"`

	// Data holds this page's rows, already fixed to typed values per
	// each column's parsed signature. Nil when the page carries no
	// rows (e.g. the terminal page of a SELECT, or a DDL/DML page).
	Data []Row `json:"-"`

	// Stats reports the coordinator's view of query progress.
	Stats StatementStats `json:"stats"`

	// Error is set when the query failed server-side.
	Error *QueryError `json:"error,omitempty"`

	// Warnings lists any warnings raised during execution.
	Warnings []Warning `json:"warnings,omitempty"`

	// UpdateType names the kind of update performed (INSERT, DELETE, ...).
	UpdateType string `json:"updateType,omitempty"`

	// UpdateCount is the number of rows affected by an update.
	UpdateCount *int64 `json:"updateCount,omitempty"`
}

// HasMoreBatch reports whether this page has a NextURI to continue
// from, i.e. whether the stream of pages has not yet ended.
func (qr *QueryResults) HasMoreBatch() bool {
	return qr != nil && qr.NextURI != ""
}

// wireQueryResults mirrors the server's JSON page shape exactly,
// keeping Data as raw per-row arrays so decodeQueryResults can fix
// each row's values against the page's own Columns.
type wireQueryResults struct {
	ID               string            `json:"id"`
	InfoURI          string            `json:"infoUri"`
	PartialCancelURI *string           `json:"partialCancelUri"`
	NextURI          *string           `json:"nextUri"`
	Columns          []*Column         `json:"columns"`
	Data             []json.RawMessage `json:"data"`
	Stats            StatementStats    `json:"stats"`
	Error            *QueryError       `json:"error"`
	Warnings         []Warning         `json:"warnings"`
	UpdateType       *string           `json:"updateType"`
	UpdateCount      *int64            `json:"updateCount"`
}

// decodeQueryResults decodes one page's JSON body and fixes each row's
// values against the page's own column signatures, per §4.2.
func decodeQueryResults(body []byte) (*QueryResults, error) {
	var wire wireQueryResults
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}

	qr := &QueryResults{
		ID:          wire.ID,
		InfoURI:     wire.InfoURI,
		Columns:     wire.Columns,
		Stats:       wire.Stats,
		Error:       wire.Error,
		Warnings:    wire.Warnings,
		UpdateCount: wire.UpdateCount,
	}
	if wire.PartialCancelURI != nil {
		qr.PartialCancelURI = *wire.PartialCancelURI
	}
	if wire.NextURI != nil {
		qr.NextURI = *wire.NextURI
	}
	if wire.UpdateType != nil {
		qr.UpdateType = *wire.UpdateType
	}

	if wire.Data == nil {
		return qr, nil
	}

	sigs := make([]TypeSignature, len(wire.Columns))
	for i, col := range wire.Columns {
		sig, err := col.ParsedType()
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}

	rows := make([]Row, len(wire.Data))
	for i, rawRow := range wire.Data {
		decoded, err := decodeOrderedJSON(rawRow)
		if err != nil {
			return nil, err
		}
		values, ok := decoded.([]any)
		if !ok {
			return nil, &ValueCoercionError{Signature: "row", Value: decoded, Reason: "expected a JSON array of values"}
		}
		if len(values) != len(sigs) {
			return nil, &ValueCoercionError{Signature: "row", Value: decoded, Reason: "row length does not match column count"}
		}
		row := make(Row, len(values))
		for j, v := range values {
			fixed, err := FixValue(sigs[j], v)
			if err != nil {
				return nil, err
			}
			row[j] = fixed
		}
		rows[i] = row
	}
	qr.Data = rows

	return qr, nil
}
