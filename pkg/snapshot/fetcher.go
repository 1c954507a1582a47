package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
)

// securityHeaders are copied from the response into the snapshot
var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
	"Permissions-Policy",
	"Content-Encoding",
	"Cache-Control",
	"Content-Type",
	"X-Robots-Tag",
}

// Fetcher is the HTTP implementation of Provider
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  logging.Logger
}

// New creates a Fetcher
func New(opts Options, logger logging.Logger) *Fetcher {
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = DefaultOptions().RequestsPerSec
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions().UserAgent
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Fetcher{
		client:  &http.Client{Transport: transport, Timeout: opts.Timeout, Jar: jar},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		opts:    opts,
		logger:  logger,
	}
}

// Snapshot fetches rawURL and builds its snapshot. Network, render and
// content-type failures are reported as ErrUnavailable.
func (f *Fetcher) Snapshot(ctx context.Context, rawURL string) (*models.PageSnapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrUnavailable, rawURL)
	}

	robots := f.robotsInfo(ctx, u)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WithFields(logging.Fields{"url": rawURL, "error": err}).Warn("Fetch failed")
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	loaded := time.Since(start)

	if !isWebpageMIME(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: non-webpage content type %q", ErrUnavailable, resp.Header.Get("Content-Type"))
	}

	snap, err := Extract(body, resp.Request.URL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	snap.URL = rawURL
	snap.StatusCode = resp.StatusCode
	snap.Headers = make(map[string]string)
	for _, h := range securityHeaders {
		if v := resp.Header.Get(h); v != "" {
			snap.Headers[h] = v
		}
	}
	if resp.Uncompressed {
		// the transport strips Content-Encoding after transparent gzip decoding
		snap.Headers["Content-Encoding"] = "gzip"
	}
	snap.Timing = models.Timing{Load: loaded, TransferBytes: int64(len(body))}
	if !firstByte.IsZero() {
		snap.Timing.TTFB = firstByte.Sub(start)
	}
	snap.Robots = robots
	snap.FetchedAt = time.Now().UTC()

	f.logger.WithFields(logging.Fields{
		"url":    rawURL,
		"status": resp.StatusCode,
		"bytes":  len(body),
		"load":   loaded,
	}).Debug("Snapshot taken")

	return snap, nil
}

// robotsInfo fetches robots.txt for the host. A missing or unreadable file
// allows everything.
func (f *Fetcher) robotsInfo(ctx context.Context, u *url.URL) models.RobotsInfo {
	info := models.RobotsInfo{Allowed: true}
	if !f.opts.FollowRobotsTxt {
		return info
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return info
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return info
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info
	}

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return info
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	info.Fetched = true
	info.Allowed = robots.TestAgent(path, f.opts.UserAgent)
	info.Sitemaps = robots.Sitemaps
	return info
}

func isWebpageMIME(contentType string) bool {
	if contentType == "" {
		return true
	}
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	webpageMIMEs := []string{"text/html", "application/xhtml+xml", "application/xhtml"}
	for _, mime := range webpageMIMEs {
		if mime == mimeType {
			return true
		}
	}
	return false
}
