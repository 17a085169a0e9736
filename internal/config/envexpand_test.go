package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/corpus-querier/internal/config"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("CORPUSQ_T_SET", "gigafida")
	t.Setenv("CORPUSQ_T_EMPTY", "")

	cases := []struct{ in, want string }{
		{"corpus: ${CORPUSQ_T_SET}", "corpus: gigafida"},
		{"corpus: ${CORPUSQ_T_SET:-kres}", "corpus: gigafida"},
		{"corpus: ${CORPUSQ_T_UNSET:-kres}", "corpus: kres"},
		{"corpus: ${CORPUSQ_T_EMPTY:-kres}", "corpus: kres"},
		{"corpus: ${CORPUSQ_T_UNSET}", "corpus: "},
		{"base_url: ${CORPUSQ_T_UNSET:-https://ske.example/run.cgi}", "base_url: https://ske.example/run.cgi"},
		{`cql: '[word="$x"]'`, `cql: '[word="$x"]'`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, config.ExpandEnv(tc.in), tc.in)
	}
}
