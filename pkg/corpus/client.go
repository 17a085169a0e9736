// Package corpus is a minimal client for the NoSketch/Sketch Engine "bonito"
// concordance endpoint, reduced to the one operation needed here: counting the
// hits of a CQL query in a corpus.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/corpus-querier/internal/util"
)

// DefaultBaseURL is the CLARIN.SI bonito endpoint the tool was first written against.
const DefaultBaseURL = "https://www.clarin.si/ske/bonito/run.cgi"

// QueryStyle selects how the query text is encoded into request parameters.
type QueryStyle string

const (
	// QueryStyleCQL sends queryselector=cqlrow with the raw query in "cql".
	QueryStyleCQL QueryStyle = "cql"
	// QueryStyleQ sends the query in "q" prefixed with the "q" selector token.
	QueryStyleQ QueryStyle = "q"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the run.cgi root; "first" is resolved against it.
	BaseURL string
	Style   QueryStyle
	// DefaultAttr is the attribute bare strings in a CQL query match against.
	DefaultAttr string
	// ContextAttrs are optional extra parameters (e.g. attrs, refs) sent verbatim.
	ContextAttrs map[string]string
	// HTTPClient overrides the transport. Its Timeout is ignored; per-attempt
	// timeouts are enforced through the request context.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues hit-count requests.
type Client struct {
	firstURL     *url.URL
	style        QueryStyle
	defaultAttr  string
	contextAttrs map[string]string
	http         *http.Client
	logger       *zap.Logger
}

type firstResponse struct {
	Fullsize *json.Number `json:"fullsize"`
	Error    string       `json:"error"`
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	baseURL, err := parseBaseURL(base)
	if err != nil {
		return nil, err
	}

	style := cfg.Style
	switch style {
	case "":
		style = QueryStyleCQL
	case QueryStyleCQL, QueryStyleQ:
	default:
		return nil, fmt.Errorf("unknown query style %q", style)
	}

	attr := strings.TrimSpace(cfg.DefaultAttr)
	if attr == "" {
		attr = "word"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		firstURL:     baseURL.ResolveReference(&url.URL{Path: "first"}),
		style:        style,
		defaultAttr:  attr,
		contextAttrs: cfg.ContextAttrs,
		http:         hc,
		logger:       logger,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse corpus base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("corpus base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// URL returns the request URL Attempt would issue for query against corpusName.
func (c *Client) URL(query, corpusName string) string {
	q := url.Values{}
	// Context attributes go first so they can never replace the query itself.
	for k, v := range c.contextAttrs {
		q.Set(k, v)
	}
	q.Set("corpname", corpusName)
	switch c.style {
	case QueryStyleQ:
		q.Del("queryselector")
		q.Del("cql")
		q.Set("q", "q"+query)
	default:
		q.Del("q")
		q.Set("queryselector", "cqlrow")
		q.Set("default_attr", c.defaultAttr)
		q.Set("cql", query)
	}
	q.Set("pagesize", "1")
	q.Set("format", "json")

	u := *c.firstURL
	u.RawQuery = q.Encode()
	return u.String()
}

// Attempt performs one hit-count request bounded by timeout. It never returns an
// error: every failure is folded into the AttemptResult.
func (c *Client) Attempt(ctx context.Context, query, corpusName string, timeout time.Duration) AttemptResult {
	fullURL := c.URL(query, corpusName)
	start := time.Now()

	res := c.do(ctx, fullURL, timeout)
	res.Duration = time.Since(start)

	logFields := []zap.Field{
		zap.String("query", query),
		zap.String("corpus", corpusName),
		zap.String("url", util.RedactURL(fullURL)),
		zap.Stringer("result", res.Kind),
		zap.Duration("duration", res.Duration.Round(time.Millisecond)),
	}
	switch res.Kind {
	case AttemptCount:
		c.logger.Info("corpus query", append(logFields, zap.Int64("hits", res.Count))...)
	default:
		c.logger.Warn("corpus query", append(logFields, zap.String("error", util.RedactSecrets(res.Reason())))...)
	}
	return res
}

func (c *Client) do(ctx context.Context, fullURL string, timeout time.Duration) AttemptResult {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Fault(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err, timeout)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(ctx, err, timeout)
	}
	if resp.StatusCode/100 != 2 {
		return Fault(newHTTPError("first", resp, b))
	}

	n, err := parseHits(b)
	if err != nil {
		return Fault(err)
	}
	return Count(n)
}

// classifyTransportError separates our own deadline from everything else. A
// cancelled parent context is a fault, not a timeout.
func classifyTransportError(parent context.Context, err error, timeout time.Duration) AttemptResult {
	if parent.Err() != nil {
		return Fault(parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(fmt.Errorf("no response within %s: %w", timeout, err))
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout(fmt.Errorf("no response within %s: %w", timeout, err))
	}
	return Fault(err)
}

func parseHits(body []byte) (int64, error) {
	var out firstResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("parse search response: %w", err)
	}
	if msg := strings.TrimSpace(out.Error); msg != "" {
		return 0, &ServerError{Message: msg}
	}
	if out.Fullsize == nil {
		return 0, nil
	}

	raw := out.Fullsize.String()
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) || f > math.MaxInt64 {
			return 0, fmt.Errorf("invalid fullsize %q", raw)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid fullsize %d", n)
	}
	return n, nil
}
