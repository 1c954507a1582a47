package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu           sync.RWMutex
	audits       map[string]models.AuditRecord
	alerts       map[string]models.Alert
	activeAlerts map[string]string // dedup key -> alert id
	rules        map[string]models.AlertRule
	schedules    map[string]models.MonitoringSchedule
	prefs        map[string]models.NotificationPreferences
	keywords     map[string]models.Keyword
	observations map[string][]models.KeywordObservation
	credentials  map[string]models.Credential
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		audits:       make(map[string]models.AuditRecord),
		alerts:       make(map[string]models.Alert),
		activeAlerts: make(map[string]string),
		rules:        make(map[string]models.AlertRule),
		schedules:    make(map[string]models.MonitoringSchedule),
		prefs:        make(map[string]models.NotificationPreferences),
		keywords:     make(map[string]models.Keyword),
		observations: make(map[string][]models.KeywordObservation),
		credentials:  make(map[string]models.Credential),
	}
}

// Close is a no-op
func (m *Memory) Close() error { return nil }

func (m *Memory) SaveAudit(_ context.Context, rec *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Findings = append([]models.Finding(nil), rec.Findings...)
	m.audits[rec.ID] = cp
	return nil
}

func (m *Memory) GetAudit(_ context.Context, id string) (*models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.audits[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Findings = append([]models.Finding(nil), rec.Findings...)
	return &rec, nil
}

func (m *Memory) AuditHistory(_ context.Context, targetURL string, since time.Time) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AuditRecord
	for _, rec := range m.audits {
		if rec.TargetURL == targetURL && !rec.Timestamp.Before(since) {
			rec.Findings = append([]models.Finding(nil), rec.Findings...)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func copyAlert(a models.Alert) models.Alert {
	if a.Details != nil {
		d := make(map[string]string, len(a.Details))
		for k, v := range a.Details {
			d[k] = v
		}
		a.Details = d
	}
	return a
}

func (m *Memory) InsertAlertIfAbsent(_ context.Context, a *models.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.DedupKey()
	if a.Status == models.AlertActive {
		if _, exists := m.activeAlerts[key]; exists {
			return false, nil
		}
		m.activeAlerts[key] = a.ID
	}
	m.alerts[a.ID] = copyAlert(*a)
	return true, nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a = copyAlert(a)
	return &a, nil
}

func (m *Memory) TransitionAlert(_ context.Context, id string, from, to models.AlertStatus, actor string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != from {
		return false, nil
	}
	applyTransition(&a, to, actor, at)
	if from == models.AlertActive && m.activeAlerts[a.DedupKey()] == id {
		delete(m.activeAlerts, a.DedupKey())
	}
	m.alerts[id] = a
	return true, nil
}

func applyTransition(a *models.Alert, to models.AlertStatus, actor string, at time.Time) {
	a.Status = to
	switch to {
	case models.AlertAcknowledged:
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = actor
	case models.AlertDismissed:
		a.DismissedAt = &at
	}
}

func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Alert
	for _, a := range m.alerts {
		if f.match(&a) {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SaveRule(_ context.Context, r *models.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.Condition = append([]byte(nil), r.Condition...)
	m.rules[r.ID] = cp
	return nil
}

func (m *Memory) GetRule(_ context.Context, id string) (*models.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListRules(_ context.Context, userID string) ([]models.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AlertRule
	for _, r := range m.rules {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copySchedule(s models.MonitoringSchedule) models.MonitoringSchedule {
	if s.Config != nil {
		c := make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			c[k] = v
		}
		s.Config = c
	}
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		s.LastRunAt = &t
	}
	return s
}

func (m *Memory) SaveSchedule(_ context.Context, s *models.MonitoringSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = copySchedule(*s)
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id string) (*models.MonitoringSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	s = copySchedule(s)
	return &s, nil
}

func (m *Memory) ListSchedules(_ context.Context) ([]models.MonitoringSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.MonitoringSchedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, copySchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetScheduleEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.Enabled = enabled
	m.schedules[id] = s
	return nil
}

func (m *Memory) RecordRun(_ context.Context, id string, at time.Time, status models.RunStatus, runErr string) (*models.MonitoringSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	applyRun(&s, at, status, runErr)
	m.schedules[id] = s
	out := copySchedule(s)
	return &out, nil
}

func applyRun(s *models.MonitoringSchedule, at time.Time, status models.RunStatus, runErr string) {
	s.LastRunAt = &at
	s.LastRunStatus = status
	s.LastError = runErr
	if status == models.RunFailed {
		s.ConsecutiveFailures++
	} else {
		s.ConsecutiveFailures = 0
	}
}

func (m *Memory) GetPreferences(_ context.Context, userID string) (*models.NotificationPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPrefs(p), nil
}

func (m *Memory) SavePreferences(_ context.Context, p *models.NotificationPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = *copyPrefs(*p)
	return nil
}

func copyPrefs(p models.NotificationPreferences) *models.NotificationPreferences {
	if p.AlertTypes != nil {
		t := make(map[models.AlertType]bool, len(p.AlertTypes))
		for k, v := range p.AlertTypes {
			t[k] = v
		}
		p.AlertTypes = t
	}
	return &p
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func (m *Memory) UpsertKeyword(_ context.Context, k *models.Keyword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	if k.ExternalMetrics != nil {
		em := *k.ExternalMetrics
		cp.ExternalMetrics = &em
	}
	m.keywords[pairKey(k.TargetURL, k.Keyword)] = cp
	return nil
}

func (m *Memory) GetKeyword(_ context.Context, targetURL, keyword string) (*models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keywords[pairKey(targetURL, keyword)]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (m *Memory) ListKeywords(_ context.Context, targetURL string) ([]models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Keyword
	for _, k := range m.keywords {
		if k.TargetURL == targetURL {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (m *Memory) AppendObservation(_ context.Context, o models.KeywordObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(o.TargetURL, o.Keyword)
	m.observations[key] = append(m.observations[key], o)
	return nil
}

func (m *Memory) Observations(_ context.Context, targetURL, keyword string, since time.Time) ([]models.KeywordObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.KeywordObservation
	for _, o := range m.observations[pairKey(targetURL, keyword)] {
		if !o.ObservedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (m *Memory) SaveCredential(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(c.UserID, c.Provider)
	stored := *c
	if stored.RefreshToken == "" {
		stored.RefreshToken = m.credentials[key].RefreshToken
	}
	m.credentials[key] = stored
	return nil
}

func (m *Memory) GetCredential(_ context.Context, userID, provider string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[pairKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

var _ Store = (*Memory)(nil)
