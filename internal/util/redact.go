package util

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// key=value pairs in free text and query strings.
	secretKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|token|access[_-]?token|secret|password|passwd)=([^\s&"']+)`)

	// user:password@ in URLs embedded in messages.
	userinfoRe = regexp.MustCompile(`(?i)(\b[a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`)
)

var secretParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"api-key":      true,
	"token":        true,
	"access_token": true,
	"secret":       true,
	"password":     true,
	"passwd":       true,
}

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
// It is safe to call on any message, including upstream error strings.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = secretKVRe.ReplaceAllString(out, "$1=<redacted>")
	out = userinfoRe.ReplaceAllString(out, "${1}<redacted>@")
	return strings.TrimSpace(out)
}

// RedactURL masks credentials and secret query parameters of a URL. Strings
// that do not parse are passed through RedactSecrets.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedactSecrets(raw)
	}
	if u.User != nil {
		u.User = url.User("<redacted>")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if secretParams[strings.ToLower(k)] {
				q.Set(k, "redacted")
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
