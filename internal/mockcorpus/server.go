// Package mockcorpus serves a minimal bonito-like "first" endpoint for local
// runs and tests. Counts come from a fixture table; failures and latency can be
// scripted per query.
package mockcorpus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Behavior is a scripted response for one request.
type Behavior string

const (
	// BehaviorCount answers with the fixture count.
	BehaviorCount Behavior = "count"
	// BehaviorFault answers 502.
	BehaviorFault Behavior = "fault"
	// BehaviorServerError answers 200 with an error field.
	BehaviorServerError Behavior = "server-error"
	// BehaviorHang blocks until the client gives up.
	BehaviorHang Behavior = "hang"
)

// Call records a request made to the mock service.
type Call struct {
	Corpus string
	Query  string
	Params map[string]string
}

// Fixtures is the on-disk form of a server's table.
type Fixtures struct {
	// Counts maps corpus name to query to hit count. The corpus "*" matches any.
	Counts map[string]map[string]int64 `yaml:"counts"`
	// Script maps a query to the behaviors of its successive requests. Once
	// exhausted, requests fall back to BehaviorCount.
	Script  map[string][]Behavior `yaml:"script"`
	Latency time.Duration         `yaml:"latency"`
}

// LoadFixtures reads a YAML fixture file.
func LoadFixtures(path string) (Fixtures, error) {
	var fx Fixtures
	b, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return fx, fmt.Errorf("invalid fixtures in %s: %w", path, err)
	}
	return fx, nil
}

type Server struct {
	mu      sync.Mutex
	counts  map[string]map[string]int64
	script  map[string][]Behavior
	latency time.Duration
	calls   []Call
}

func New() *Server {
	return &Server{
		counts: make(map[string]map[string]int64),
		script: make(map[string][]Behavior),
	}
}

// NewFromFixtures constructs a server preloaded with fx.
func NewFromFixtures(fx Fixtures) *Server {
	s := New()
	for corpusName, qs := range fx.Counts {
		for q, n := range qs {
			s.SetCount(corpusName, q, n)
		}
	}
	for q, bs := range fx.Script {
		s.Script(q, bs...)
	}
	s.SetLatency(fx.Latency)
	return s
}

// SetCount registers the hit count of query in corpusName ("*" for any corpus).
func (s *Server) SetCount(corpusName, query string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.counts[corpusName]
	if m == nil {
		m = make(map[string]int64)
		s.counts[corpusName] = m
	}
	m[query] = n
}

// Script queues behaviors for the next requests of query.
func (s *Server) Script(query string, bs ...Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[query] = append(s.script[query], bs...)
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Handler serves GET .../first on any prefix.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleFirst)
}

func (s *Server) handleFirst(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/first") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v := r.URL.Query()
	corpusName := v.Get("corpname")
	query := v.Get("cql")
	if query == "" {
		query = strings.TrimPrefix(v.Get("q"), "q")
	}
	params := make(map[string]string, len(v))
	for k := range v {
		params[k] = v.Get(k)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Corpus: corpusName, Query: query, Params: params})
	behavior := BehaviorCount
	if q := s.script[query]; len(q) > 0 {
		behavior = q[0]
		s.script[query] = q[1:]
	}
	latency := s.latency
	n, known := s.lookup(corpusName, query)
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(latency):
		}
	}

	switch behavior {
	case BehaviorHang:
		<-r.Context().Done()
		return
	case BehaviorFault:
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	case BehaviorServerError:
		writeJSON(w, http.StatusOK, map[string]any{"error": "query failed"})
		return
	}

	if corpusName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing corpname"})
		return
	}
	if !known {
		n = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{"fullsize": n, "concsize": n})
}

// lookup must be called with s.mu held.
func (s *Server) lookup(corpusName, query string) (int64, bool) {
	if n, ok := s.counts[corpusName][query]; ok {
		return n, true
	}
	n, ok := s.counts["*"][query]
	return n, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
