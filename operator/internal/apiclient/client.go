package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"

	"github.com/portwatch/portwatch/operator/internal/config"
	"github.com/portwatch/portwatch/operator/internal/promscrape"
	"github.com/portwatch/portwatch/pkg/types"
)

const operatorHeader = "X-Operator"

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("apiclient: unauthorized (check operator.auth)")

// Client calls the portwatch REST API.
type Client struct {
	cfg    config.OperatorConfig
	base   string
	http   *http.Client
	dialer *websocket.Dialer
}

// New builds a Client for cfg.ServerURL.
func New(cfg config.OperatorConfig) (*Client, error) {
	tlsCfg, err := cfg.Auth.TLS()
	if err != nil {
		return nil, fmt.Errorf("apiclient: %w", err)
	}
	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg},
		cfg:  cfg,
	}
	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(cfg.ServerURL, "/"),
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		dialer: &websocket.Dialer{
			TLSClientConfig:  tlsCfg,
			HandshakeTimeout: cfg.Timeout,
		},
	}, nil
}

// authRoundTripper injects the API key and operator name into every
// outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	cfg  config.OperatorConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.cfg.Auth.Mode == "apikey" {
		req.Header.Set(t.cfg.Auth.EffectiveHeader(), t.cfg.Auth.Key())
	}
	if t.cfg.Name != "" {
		req.Header.Set(operatorHeader, t.cfg.Name)
	}
	return t.base.RoundTrip(req)
}

// Board returns the status of every portfolio.
func (c *Client) Board(ctx context.Context) ([]PortfolioStatus, error) {
	var out []PortfolioStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/portfolios", nil, &out)
	return out, err
}

// Status returns one portfolio's status.
func (c *Client) Status(ctx context.Context, portfolioID string) (PortfolioStatus, error) {
	var out PortfolioStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/portfolios/"+url.PathEscape(portfolioID)+"/status", nil, &out)
	return out, err
}

// SetChecked sets a portfolio's all-sites-checked flag.
func (c *Client) SetChecked(ctx context.Context, portfolioID string, checked bool, reason string) (types.Portfolio, error) {
	body := map[string]interface{}{"all_sites_checked": checked, "reason": reason}
	var out types.Portfolio
	err := c.do(ctx, http.MethodPost, "/api/v1/portfolios/"+url.PathEscape(portfolioID)+"/checked", body, &out)
	return out, err
}

// Coverage returns one day's coverage. An empty day means today on the
// server's clock.
func (c *Client) Coverage(ctx context.Context, day string) (Coverage, error) {
	path := "/api/v1/coverage"
	if day != "" {
		path += "?day=" + url.QueryEscape(day)
	}
	var out Coverage
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CoverageRange returns coverage for every day from..to inclusive.
func (c *Client) CoverageRange(ctx context.Context, from, to string) ([]Coverage, error) {
	q := url.Values{"from": {from}, "to": {to}}
	var out struct {
		Days []Coverage `json:"days"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/coverage?"+q.Encode(), nil, &out)
	return out.Days, err
}

// RecordIssue records an issue. The server releases the recorder's lease on
// the slot.
func (c *Client) RecordIssue(ctx context.Context, in IssueInput) (types.Issue, error) {
	var out types.Issue
	err := c.do(ctx, http.MethodPost, "/api/v1/issues", in, &out)
	return out, err
}

// Issues lists issues for a portfolio, all portfolios when portfolioID is empty.
func (c *Client) Issues(ctx context.Context, portfolioID string, from, to time.Time) ([]types.Issue, error) {
	q := url.Values{}
	if portfolioID != "" {
		q.Set("portfolio_id", portfolioID)
	}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	path := "/api/v1/issues"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []types.Issue
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Health returns the server's health summary.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out)
	return out, err
}

// Alerts returns firing and recently resolved alerts.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	err := c.do(ctx, http.MethodGet, "/api/v1/alerts", nil, &out)
	return out, err
}

// Metrics scrapes the server's Prometheus endpoint.
func (c *Client) Metrics(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	return promscrape.Fetch(ctx, c.http, c.base+"/metrics")
}

// Stream connects to /ws/stream and calls fn with every pushed snapshot
// until ctx is cancelled or the connection drops.
func (c *Client) Stream(ctx context.Context, fn func(Snapshot)) error {
	u, err := url.Parse(c.base + "/ws/stream")
	if err != nil {
		return fmt.Errorf("apiclient: stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.cfg.Auth.Mode == "apikey" {
		header.Set(c.cfg.Auth.EffectiveHeader(), c.cfg.Auth.Key())
	}
	if c.cfg.Name != "" {
		header.Set(operatorHeader, c.cfg.Name)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("apiclient: dial stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("apiclient: read stream: %w", err)
		}
		fn(msg.Data)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Unavailable("apiclient: "+method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", path, err)
	}
	return nil
}

// decodeError maps an error response back to the pkg/types taxonomy.
func decodeError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		ce := &types.ConflictError{HeldBy: eb.HeldBy}
		if eb.ExpiresAt != nil {
			ce.ExpiresAt = *eb.ExpiresAt
		}
		if eb.HeldBy == "" && eb.ExpiresAt == nil {
			return fmt.Errorf("%s: %w", msg, types.ErrConflict)
		}
		return ce
	case http.StatusBadRequest:
		if eb.Field != "" {
			return &types.ValidationError{Field: eb.Field, Message: strings.TrimPrefix(msg, eb.Field+": ")}
		}
		return &types.ValidationError{Message: msg}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, types.ErrNotFound)
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusServiceUnavailable:
		return types.Unavailable("server", errors.New(msg))
	default:
		return errors.New("apiclient: server returned " + strconv.Itoa(resp.StatusCode) + ": " + msg)
	}
}
