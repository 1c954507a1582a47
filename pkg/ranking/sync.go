package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

const (
	// QueryWindow is the period each sync pulls analytics for
	QueryWindow = 7 * 24 * time.Hour
	// HistoryWindow is how much observation history is handed to rules
	HistoryWindow = 30 * 24 * time.Hour
)

// ErrNotAuthorized means the user has no stored provider credential
var ErrNotAuthorized = errors.New("no provider credential, run authorize first")

// Source is the provider data pull
type Source interface {
	Name() string
	Query(ctx context.Context, tok *oauth2.Token, property string, start, end time.Time) ([]Row, *oauth2.Token, error)
}

// SourceError is a failed pull. Failures counts consecutive failures for
// the same user and source.
type SourceError struct {
	Source   string
	Failures int
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s sync failed (%d in a row): %v", e.Source, e.Failures, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Signal converts the failure into a rule engine signal
func (e *SourceError) Signal(targetURL string, at time.Time) rules.Signal {
	return rules.Signal{
		Kind:                rules.SignalSourceError,
		Source:              e.Source,
		TargetURL:           targetURL,
		Message:             e.Err.Error(),
		ConsecutiveFailures: e.Failures,
		At:                  at,
	}
}

// SyncResult lists the keywords a sync updated with their recent history
type SyncResult struct {
	TargetURL string
	Series    []rules.KeywordSeries
	Missing   []string
}

// Syncer updates tracked keywords from the provider
type Syncer struct {
	source   Source
	keywords store.KeywordStore
	creds    store.CredentialStore
	metrics  *metrics.Metrics
	logger   logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]int
}

// NewSyncer creates a Syncer
func NewSyncer(source Source, keywords store.KeywordStore, creds store.CredentialStore, logger logging.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{
		source:   source,
		keywords: keywords,
		creds:    creds,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		failures: make(map[string]int),
	}
}

// Track starts tracking keyword for targetURL. Tracking an already tracked
// keyword is a no-op.
func (s *Syncer) Track(ctx context.Context, targetURL, keyword string) error {
	if targetURL == "" || keyword == "" {
		return fmt.Errorf("target url and keyword are required")
	}
	if _, err := s.keywords.GetKeyword(ctx, targetURL, keyword); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.keywords.UpsertKeyword(ctx, &models.Keyword{
		Keyword:   keyword,
		TargetURL: targetURL,
		Trend:     models.TrendStable,
		UpdatedAt: s.now(),
	})
}

// Sync pulls analytics for property and updates every keyword tracked for
// targetURL. Provider failures are returned as *SourceError.
func (s *Syncer) Sync(ctx context.Context, userID, targetURL, property string) (*SyncResult, error) {
	log := s.logger.WithFields(logging.Fields{
		"user_id":    userID,
		"target_url": targetURL,
		"source":     s.source.Name(),
	})

	tracked, err := s.keywords.ListKeywords(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	if len(tracked) == 0 {
		log.Debug("No tracked keywords, skipping sync")
		return &SyncResult{TargetURL: targetURL}, nil
	}

	cred, err := s.creds.GetCredential(ctx, userID, s.source.Name())
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.fail(userID, ErrNotAuthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	now := s.now()
	tok := TokenFromCredential(cred)
	rows, current, err := s.source.Query(ctx, tok, property, now.Add(-QueryWindow), now)
	if err != nil {
		return nil, s.fail(userID, err)
	}
	s.reset(userID)

	if current != nil && current.AccessToken != tok.AccessToken {
		if err := s.creds.SaveCredential(ctx, CredentialFromToken(userID, s.source.Name(), current, now)); err != nil {
			log.WithError(err).Warn("Failed to store refreshed token")
		}
	}

	byKeyword := make(map[string]Row, len(rows))
	for _, r := range rows {
		byKeyword[r.Keyword] = r
	}

	result := &SyncResult{TargetURL: targetURL}
	for _, k := range tracked {
		row, ok := byKeyword[k.Keyword]
		if !ok {
			result.Missing = append(result.Missing, k.Keyword)
			continue
		}

		updated := k
		updated.PreviousPosition = k.Position
		updated.Position = int(math.Round(row.Position))
		updated.Trend = models.TrendBetween(k.Position, updated.Position)
		updated.ExternalMetrics = &models.ExternalMetrics{
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			CTR:         row.CTR,
		}
		updated.UpdatedAt = now

		if err := s.keywords.UpsertKeyword(ctx, &updated); err != nil {
			return nil, fmt.Errorf("update keyword %q: %w", k.Keyword, err)
		}
		if err := s.keywords.AppendObservation(ctx, models.KeywordObservation{
			Keyword:    k.Keyword,
			TargetURL:  targetURL,
			Position:   updated.Position,
			Trend:      updated.Trend,
			ObservedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("record observation %q: %w", k.Keyword, err)
		}

		history, err := s.keywords.Observations(ctx, targetURL, k.Keyword, now.Add(-HistoryWindow))
		if err != nil {
			return nil, fmt.Errorf("load history %q: %w", k.Keyword, err)
		}
		result.Series = append(result.Series, rules.KeywordSeries{Keyword: updated, Observations: history})
	}

	log.WithFields(logging.Fields{
		"updated": len(result.Series),
		"missing": len(result.Missing),
	}).Info("Keyword sync completed")
	return result, nil
}

func (s *Syncer) fail(userID string, err error) error {
	s.mu.Lock()
	s.failures[userID]++
	n := s.failures[userID]
	s.mu.Unlock()

	s.metrics.KeywordSyncFailed()
	return &SourceError{Source: s.source.Name(), Failures: n, Err: err}
}

func (s *Syncer) reset(userID string) {
	s.mu.Lock()
	delete(s.failures, userID)
	s.mu.Unlock()
}

// TokenFromCredential rebuilds an OAuth token from a stored credential
func TokenFromCredential(c *models.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// CredentialFromToken converts a token for storage
func CredentialFromToken(userID, provider string, tok *oauth2.Token, now time.Time) *models.Credential {
	return &models.Credential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		UpdatedAt:    now,
	}
}
