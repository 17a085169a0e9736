package cql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/corpus-querier/internal/cql"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		raw    string
		strict bool
		query  string
		reason string
		ok     bool
	}{
		{raw: `[word="cat"]`, strict: true, query: `[word="cat"]`, ok: true},
		{raw: "  [lemma=\"pes\"] [tag=\"S.*\"]\n", strict: true, query: `[lemma="pes"] [tag="S.*"]`, ok: true},
		{raw: "", strict: true, reason: cql.ReasonEmpty},
		{raw: "   ", strict: false, reason: cql.ReasonEmpty},
		{raw: "nan", strict: true, reason: cql.ReasonEmpty},
		{raw: "NaN", strict: false, reason: cql.ReasonEmpty},
		{raw: "not-a-query", strict: true, query: "not-a-query", reason: cql.ReasonMalformed},
		{raw: "42", strict: true, query: "42", reason: cql.ReasonMalformed},
		{raw: `"cat"`, strict: false, query: `"cat"`, ok: true},
	}

	for _, tc := range cases {
		query, reason, ok := cql.Check(tc.raw, tc.strict)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.reason, reason, "raw=%q", tc.raw)
		assert.Equal(t, tc.query, query, "raw=%q", tc.raw)
	}
}
