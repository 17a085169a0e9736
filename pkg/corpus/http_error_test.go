package corpus

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBody_KeepsRuneBoundary(t *testing.T) {
	// 255 ASCII bytes then a two-byte rune straddling the 256 byte cap.
	body := []byte(strings.Repeat("a", 255) + "č" + strings.Repeat("b", 10))

	got := truncateBody(body)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 255)+"...", got)
}

func TestTruncateBody_Short(t *testing.T) {
	assert.Equal(t, "napaka: čšž", truncateBody([]byte("napaka: čšž\n")))
	assert.Equal(t, "", truncateBody(nil))
}
