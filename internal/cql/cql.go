// Package cql holds the cheap well-formedness check applied to cell text before
// it is sent to the search API. It does not parse CQL.
package cql

import "strings"

const (
	ReasonEmpty     = "empty"
	ReasonMalformed = "malformed"
)

// placeholders are the texts spreadsheet exports use for missing values.
var placeholders = map[string]bool{
	"nan":  true,
	"none": true,
	"null": true,
	"#n/a": true,
}

// Check trims raw and decides whether it should be queried. In strict mode the
// query must open with a token bracket, which also skips cells already holding
// a count from an earlier run.
func Check(raw string, strict bool) (query string, reason string, ok bool) {
	q := strings.TrimSpace(raw)
	if q == "" || placeholders[strings.ToLower(q)] {
		return "", ReasonEmpty, false
	}
	if strict && !strings.HasPrefix(q, "[") {
		return q, ReasonMalformed, false
	}
	return q, "", true
}
