package corpus

import "time"

// AttemptKind classifies the outcome of a single request.
type AttemptKind int

const (
	AttemptCount AttemptKind = iota
	AttemptTimeout
	AttemptFault
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptCount:
		return "count"
	case AttemptTimeout:
		return "timeout"
	case AttemptFault:
		return "fault"
	default:
		return "unknown"
	}
}

// AttemptResult is the outcome of one request. Count is only meaningful for
// AttemptCount; Err is set for AttemptTimeout and AttemptFault.
type AttemptResult struct {
	Kind     AttemptKind
	Count    int64
	Err      error
	Duration time.Duration
}

// Count returns a successful result.
func Count(n int64) AttemptResult {
	return AttemptResult{Kind: AttemptCount, Count: n}
}

// Timeout returns a result for an attempt that exceeded its allotted time.
func Timeout(err error) AttemptResult {
	return AttemptResult{Kind: AttemptTimeout, Err: err}
}

// Fault returns a result for a network, HTTP or parse failure.
func Fault(err error) AttemptResult {
	return AttemptResult{Kind: AttemptFault, Err: err}
}

// Reason is a human-readable cause for failed attempts.
func (r AttemptResult) Reason() string {
	if r.Err == nil {
		return r.Kind.String()
	}
	return r.Err.Error()
}
