package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// ErrUnavailable is returned when the target page cannot be inspected
var ErrUnavailable = errors.New("snapshot unavailable")

// Provider turns a URL into a page snapshot
type Provider interface {
	// Snapshot fetches and parses the page at rawURL
	Snapshot(ctx context.Context, rawURL string) (*models.PageSnapshot, error)
}

// Options contains configuration for the fetcher
type Options struct {
	UserAgent       string        // User agent string
	Timeout         time.Duration // Request timeout
	RequestsPerSec  int           // Rate limit across all targets
	FollowRobotsTxt bool          // Respect robots.txt
	MaxBodyBytes    int64         // Body read limit
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		UserAgent:       "SEOWatch/1.0",
		Timeout:         20 * time.Second,
		RequestsPerSec:  5,
		FollowRobotsTxt: true,
		MaxBodyBytes:    5 << 20,
	}
}
