package corpus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// bonitoErrorEnvelope is the error shape returned by run.cgi endpoints.
// The server reports CQL syntax errors with HTTP 200 and this envelope.
type bonitoErrorEnvelope struct {
	Error string `json:"error"`
}

// HTTPError is a sanitized summary of a non-2xx search API response.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string

	// Message is the server-provided error message, when the body carried one.
	Message string
	// Snippet is a truncated hint for bodies without an error envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "corpus http error"
	}
	parts := []string{
		fmt.Sprintf("corpus api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env bonitoErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && strings.TrimSpace(env.Error) != "" {
		h.Message = strings.TrimSpace(env.Error)
		return h
	}

	h.Snippet = truncateBody(body)
	return h
}

// ServerError is a search API failure reported inside a 2xx JSON body.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "corpus api reported error: " + e.Message
}

func truncateBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// HTML error pages can be large; keep only a hint.
	const max = 256
	b := body
	if len(b) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	s := string(b)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
