// Package ranking pulls search-analytics data for tracked keywords from the
// external ranking provider and keeps keyword positions and history current.
package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/oauth2"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
)

// APIError is a non-success response from the provider
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Row is one keyword's analytics for the queried period
type Row struct {
	Keyword     string
	Position    float64
	Impressions int64
	Clicks      int64
	CTR         float64
}

type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
}

type queryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// Client talks to the ranking provider: OAuth authorization and the
// search-analytics query endpoint
type Client struct {
	name       string
	oauth      *oauth2.Config
	dataURL    string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	rowLimit   int
	logger     logging.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient sets the base HTTP client for token and data requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBackoff replaces the retry policy delays
func WithBackoff(maxRetries int, base, maxDelay time.Duration) Option {
	return func(c *Client) { c.executor = newExecutor(maxRetries, base, maxDelay) }
}

// NewClient creates a Client from provider configuration
func NewClient(cfg config.ProviderConfig, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		dataURL:    strings.TrimRight(cfg.DataURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   newExecutor(cfg.MaxRetries, 200*time.Millisecond, 5*time.Second),
		rowLimit:   1000,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newExecutor(maxRetries int, base, maxDelay time.Duration) failsafe.Executor[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(base, maxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return false
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Retryable()
			}
			return true
		}).
		Build()
	return failsafe.With[*http.Response](policy)
}

// Name identifies the provider in credentials and signals
func (c *Client) Name() string {
	return c.name
}

// AuthCodeURL returns the provider authorization URL carrying state
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// Query pulls per-keyword analytics for property between start and end.
// The returned token differs from tok when it was refreshed.
func (c *Client) Query(ctx context.Context, tok *oauth2.Token, property string, start, end time.Time) ([]Row, *oauth2.Token, error) {
	ts := c.oauth.TokenSource(c.withHTTPClient(ctx), tok)
	hc := oauth2.NewClient(c.withHTTPClient(ctx), ts)

	body, err := json.Marshal(queryRequest{
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		Dimensions: []string{"query"},
		RowLimit:   c.rowLimit,
	})
	if err != nil {
		return nil, nil, err
	}
	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query", c.dataURL, url.PathEscape(property))

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			defer resp.Body.Close()
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 4096))
			return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(buf.String())}
		}
		return resp, nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("property", property).Warn("Ranking query failed")
		return nil, nil, fmt.Errorf("query %s: %w", property, err)
	}
	defer resp.Body.Close()

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode query response: %w", err)
	}

	rows := make([]Row, 0, len(parsed.Rows))
	for _, r := range parsed.Rows {
		if len(r.Keys) == 0 || r.Keys[0] == "" {
			continue
		}
		rows = append(rows, Row{
			Keyword:     r.Keys[0],
			Position:    r.Position,
			Impressions: int64(r.Impressions),
			Clicks:      int64(r.Clicks),
			CTR:         r.CTR,
		})
	}

	current, err := ts.Token()
	if err != nil {
		current = tok
	}
	return rows, current, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
