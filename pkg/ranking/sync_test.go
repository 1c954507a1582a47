package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

const target = "https://example.com/"

type fakeSource struct {
	rows    []Row
	err     error
	refresh *oauth2.Token
	calls   int
}

func (f *fakeSource) Name() string { return "search-console" }

func (f *fakeSource) Query(_ context.Context, tok *oauth2.Token, _ string, _, _ time.Time) ([]Row, *oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.refresh != nil {
		return f.rows, f.refresh, nil
	}
	return f.rows, tok, nil
}

func newSyncer(t *testing.T, src *fakeSource) (*Syncer, *store.Memory, *time.Time) {
	t.Helper()
	mem := store.NewMemory()
	s := NewSyncer(src, mem, mem, logging.Discard(), nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, mem.SaveCredential(context.Background(), &models.Credential{
		UserID: "u1", Provider: "search-console", AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer",
	}))
	return s, mem, &now
}

func TestSyncUpdatesTrackedKeywords(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: []Row{
		{Keyword: "meal planner", Position: 4.6, Impressions: 340, Clicks: 12, CTR: 0.035},
		{Keyword: "untracked", Position: 2},
	}}
	s, mem, now := newSyncer(t, src)
	require.NoError(t, s.Track(ctx, target, "meal planner"))
	require.NoError(t, s.Track(ctx, target, "pantry app"))

	res, err := s.Sync(ctx, "u1", target, "sc-domain:example.com")
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, []string{"pantry app"}, res.Missing)

	k := res.Series[0].Keyword
	assert.Equal(t, 5, k.Position)
	assert.Equal(t, 0, k.PreviousPosition)
	assert.Equal(t, models.TrendStable, k.Trend)
	assert.Equal(t, int64(340), k.ExternalMetrics.Impressions)

	_, err = mem.GetKeyword(ctx, target, "untracked")
	assert.ErrorIs(t, err, store.ErrNotFound)

	*now = now.Add(24 * time.Hour)
	src.rows = []Row{{Keyword: "meal planner", Position: 2}}
	res, err = s.Sync(ctx, "u1", target, "sc-domain:example.com")
	require.NoError(t, err)
	k = res.Series[0].Keyword
	assert.Equal(t, 2, k.Position)
	assert.Equal(t, 5, k.PreviousPosition)
	assert.Equal(t, models.TrendUp, k.Trend)
	require.Len(t, res.Series[0].Observations, 2)
	assert.Equal(t, models.TrendUp, res.Series[0].Observations[1].Trend)

	stored, err := mem.GetKeyword(ctx, target, "meal planner")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Position)
}

func TestSyncFeedsKeywordRules(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rows: []Row{{Keyword: "meal planner", Position: 3}}}
	s, _, now := newSyncer(t, src)
	require.NoError(t, s.Track(ctx, target, "meal planner"))

	_, err := s.Sync(ctx, "u1", target, "p")
	require.NoError(t, err)
	*now = now.Add(time.Hour)
	src.rows = []Row{{Keyword: "meal planner", Position: 15}}
	res, err := s.Sync(ctx, "u1", target, "p")
	require.NoError(t, err)

	rule := models.AlertRule{
		ID: "r1", UserID: "u1", Type: models.AlertKeywordChange, Enabled: true,
		Severity: models.SeverityMedium, Condition: []byte(`{"threshold_positions":5,"window_hours":48}`),
	}
	alerts, errs := rules.NewEngine(logging.Discard(), nil).Evaluate(rules.Input{Keywords: res.Series, Now: *now}, []models.AlertRule{rule})
	assert.Empty(t, errs)
	require.Len(t, alerts, 1)
	assert.Equal(t, "-12", alerts[0].Details["change"])
}

func TestSyncWithoutCredential(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	s, _, _ := newSyncer(t, src)
	require.NoError(t, s.Track(ctx, target, "kw"))

	_, err := s.Sync(ctx, "someone-else", target, "p")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	var srcErr *SourceError
	assert.True(t, errors.As(err, &srcErr))
	assert.Equal(t, 0, src.calls)
}

func TestSyncFailuresCountUntilSuccess(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: errors.New("quota exceeded")}
	s, _, now := newSyncer(t, src)
	require.NoError(t, s.Track(ctx, target, "kw"))

	for i := 1; i <= 3; i++ {
		_, err := s.Sync(ctx, "u1", target, "p")
		var srcErr *SourceError
		require.True(t, errors.As(err, &srcErr))
		assert.Equal(t, i, srcErr.Failures)

		sig := srcErr.Signal(target, *now)
		assert.Equal(t, rules.SignalSourceError, sig.Kind)
		assert.Equal(t, "search-console", sig.Source)
		assert.Equal(t, i, sig.ConsecutiveFailures)
		assert.Equal(t, "quota exceeded", sig.Message)
	}

	src.err = nil
	_, err := s.Sync(ctx, "u1", target, "p")
	require.NoError(t, err)

	src.err = errors.New("again")
	_, err = s.Sync(ctx, "u1", target, "p")
	var srcErr *SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, 1, srcErr.Failures)
}

func TestSyncStoresRefreshedToken(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{refresh: &oauth2.Token{AccessToken: "fresh", TokenType: "Bearer"}}
	s, mem, _ := newSyncer(t, src)
	require.NoError(t, s.Track(ctx, target, "kw"))

	_, err := s.Sync(ctx, "u1", target, "p")
	require.NoError(t, err)

	cred, err := mem.GetCredential(ctx, "u1", "search-console")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, "rt", cred.RefreshToken)
}

func TestSyncWithNothingTracked(t *testing.T) {
	src := &fakeSource{}
	s, _, _ := newSyncer(t, src)
	res, err := s.Sync(context.Background(), "u1", target, "p")
	require.NoError(t, err)
	assert.Empty(t, res.Series)
	assert.Equal(t, 0, src.calls)
}

func TestTrackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newSyncer(t, &fakeSource{})
	require.NoError(t, s.Track(ctx, target, "kw"))
	require.NoError(t, mem.UpsertKeyword(ctx, &models.Keyword{Keyword: "kw", TargetURL: target, Position: 7}))
	require.NoError(t, s.Track(ctx, target, "kw"))

	k, err := mem.GetKeyword(ctx, target, "kw")
	require.NoError(t, err)
	assert.Equal(t, 7, k.Position)
	assert.Error(t, s.Track(ctx, "", "kw"))
}
