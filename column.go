package presto

import "sync"

// Column describes one result column: its name and its raw type
// signature text. The parsed form is cached lazily since most callers
// that read Data never need it, and some columns are consulted many
// times over the life of a query.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the raw Presto/Trino type signature text, e.g.
	// "array(row(\"a\" bigint))".
	Type string `json:"type"`

	parseOnce  sync.Once
	parsedType TypeSignature
	parseErr   error
}

// ParsedType returns the parsed TypeSignature for this column's Type
// text, parsing and caching it on first call. Grounded on the
// teacher's ClientTypeSignature stub, generalized into a real parsed
// tree per §4.1.
func (c *Column) ParsedType() (TypeSignature, error) {
	c.parseOnce.Do(func() {
		c.parsedType, c.parseErr = ParseTypeSignature(c.Type)
	})
	return c.parsedType, c.parseErr
}
