// Package authflow drives the external authorization handshake with the
// ranking provider. A session races a message-channel detector against a
// poll detector under a hard timeout; the first terminal result wins and
// every detector is torn down before the session is released.
package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
)

var (
	// ErrSessionPending is returned when the user already has a Pending session
	ErrSessionPending = errors.New("authorization already pending for user")
	// ErrTimedOut is the result error of a session that hit the hard timeout
	ErrTimedOut = errors.New("authorization timed out")
	// ErrFailed wraps every other terminal failure
	ErrFailed = errors.New("authorization failed")
	// ErrAgentClosed means the authorization window went away without a result
	ErrAgentClosed = errors.New("authorization window closed before completing")
	// ErrCancelled is the cause used by Cancel
	ErrCancelled = errors.New("authorization cancelled")

	errResolved = errors.New("session resolved")
)

// Message is a completion message delivered through the message channel
type Message struct {
	Origin string `json:"-"`
	State  string `json:"state"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// MessageChannel delivers completion messages for a correlation token.
// The returned function removes the subscription.
type MessageChannel interface {
	Subscribe(token string) (<-chan Message, func() error, error)
}

// Agent is the out-of-process window the user completes the handshake in
type Agent interface {
	Closed() bool
	Close() error
}

// Launcher opens an Agent pointed at the authorization URL
type Launcher interface {
	Launch(ctx context.Context, authURL string) (Agent, error)
}

// Provider builds authorization URLs and exchanges codes for tokens
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Coordinator runs authorization sessions, at most one Pending per user
type Coordinator struct {
	provider Provider
	channel  MessageChannel
	launcher Launcher

	pollInterval    time.Duration
	closeGrace      time.Duration
	timeout         time.Duration
	exchangeTimeout time.Duration
	origins         map[string]struct{}

	metrics *metrics.Metrics
	logger  logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	active   atomic.Int64
}

// Option customises a Coordinator
type Option func(*Coordinator)

// WithMetrics records session outcomes and live detectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithExchangeTimeout bounds the code exchange after authorization
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.exchangeTimeout = d }
}

// NewCoordinator creates a Coordinator
func NewCoordinator(provider Provider, channel MessageChannel, launcher Launcher, cfg config.AuthConfig, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider:        provider,
		channel:         channel,
		launcher:        launcher,
		pollInterval:    cfg.PollInterval,
		closeGrace:      cfg.CloseGrace,
		timeout:         cfg.Timeout,
		exchangeTimeout: 30 * time.Second,
		origins:         make(map[string]struct{}, len(cfg.TrustedOrigins)),
		logger:          logger,
		now:             time.Now,
		sessions:        make(map[string]*Session),
	}
	for _, o := range cfg.TrustedOrigins {
		c.origins[normalizeOrigin(o)] = struct{}{}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a session for userID: it subscribes to the message channel,
// launches the agent and arms both detectors. Cancelling ctx fails the
// session.
func (c *Coordinator) Start(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	s := newSession(userID, uuid.NewString(), c.now())
	base, stop := context.WithCancelCause(ctx)
	sessCtx, cancelTimeout := context.WithTimeout(base, c.timeout)
	s.ctx, s.stop = sessCtx, stop

	c.mu.Lock()
	if existing, ok := c.sessions[userID]; ok && existing.State() == Pending {
		c.mu.Unlock()
		cancelTimeout()
		stop(ErrSessionPending)
		return nil, ErrSessionPending
	}
	c.sessions[userID] = s
	c.mu.Unlock()

	log := c.logger.WithField("user_id", userID)

	msgs, unsubscribe, err := c.channel.Subscribe(s.token)
	if err != nil {
		err = fmt.Errorf("subscribe to callback channel: %w", err)
		c.abort(s, cancelTimeout, err)
		return nil, err
	}
	s.unsubscribe = unsubscribe

	agent, err := c.launcher.Launch(sessCtx, c.provider.AuthCodeURL(s.token))
	if err != nil {
		err = fmt.Errorf("launch authorization window: %w", err)
		c.abort(s, cancelTimeout, err)
		return nil, err
	}
	s.agent = agent

	c.startDetector(s, func() { c.listen(sessCtx, s, msgs) })
	c.startDetector(s, func() { c.poll(sessCtx, s, agent) })
	go c.supervise(s, cancelTimeout)

	log.WithField("timeout", c.timeout).Info("Authorization session started")
	return s, nil
}

// Authorize starts a session and waits for its result. The wait is bounded
// by the hard timeout.
func (c *Coordinator) Authorize(ctx context.Context, userID string) (Result, error) {
	s, err := c.Start(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	<-s.Done()
	return s.result, s.result.Err
}

// Cancel fails the user's Pending session. It reports whether one existed.
func (c *Coordinator) Cancel(userID string) bool {
	c.mu.Lock()
	s, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok || s.State() != Pending {
		return false
	}
	s.stop(ErrCancelled)
	return true
}

// State returns the state of the user's live session, Idle if none
func (c *Coordinator) State(userID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[userID]; ok {
		return s.State()
	}
	return Idle
}

// ActiveDetectors returns the number of detector goroutines still running
// across all sessions
func (c *Coordinator) ActiveDetectors() int {
	return int(c.active.Load())
}

func (c *Coordinator) startDetector(s *Session, run func()) {
	s.detectors.Add(1)
	c.active.Add(1)
	c.metrics.DetectorStarted()
	go func() {
		defer func() {
			c.active.Add(-1)
			c.metrics.DetectorStopped()
			s.detectors.Done()
		}()
		run()
	}()
}

// listen resolves the session from the first trusted message carrying the
// session's correlation token
func (c *Coordinator) listen(ctx context.Context, s *Session, msgs <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !c.trusted(msg.Origin) {
				c.logger.WithFields(logging.Fields{
					"user_id": s.userID,
					"origin":  msg.Origin,
				}).Debug("Ignoring message from untrusted origin")
				continue
			}
			if subtle.ConstantTimeCompare([]byte(msg.State), []byte(s.token)) != 1 {
				c.logger.WithField("user_id", s.userID).Debug("Ignoring message with foreign state")
				continue
			}
			switch {
			case msg.Error != "":
				s.resolve(Failed, outcome{err: fmt.Errorf("%w: provider returned %q", ErrFailed, msg.Error)})
				return
			case msg.Code != "":
				s.resolve(Authorized, outcome{code: msg.Code})
				return
			}
		}
	}
}

// poll checks the agent every poll interval. Once it is closed the session
// fails after the grace period unless a message resolves it first.
func (c *Coordinator) poll(ctx context.Context, s *Session, agent Agent) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !agent.Closed() {
				continue
			}
			grace := time.NewTimer(c.closeGrace)
			select {
			case <-ctx.Done():
				grace.Stop()
				return
			case <-grace.C:
			}
			s.resolve(Failed, outcome{err: fmt.Errorf("%w: %w", ErrFailed, ErrAgentClosed)})
			return
		}
	}
}

// supervise waits for the session context to end, applies the timeout or
// cancellation transition if no detector won, then tears the session down
func (c *Coordinator) supervise(s *Session, cancelTimeout context.CancelFunc) {
	defer cancelTimeout()
	<-s.ctx.Done()

	cause := context.Cause(s.ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		s.resolve(TimedOut, outcome{err: ErrTimedOut})
	} else {
		s.resolve(Failed, outcome{err: fmt.Errorf("%w: %w", ErrFailed, cause)})
	}
	c.teardown(s)
}

// abort fails a session whose setup did not complete
func (c *Coordinator) abort(s *Session, cancelTimeout context.CancelFunc, err error) {
	s.resolve(Failed, outcome{err: fmt.Errorf("%w: %w", ErrFailed, err)})
	cancelTimeout()
	c.teardown(s)
}

// teardown runs exactly once per session after its terminal transition
func (c *Coordinator) teardown(s *Session) {
	s.detectors.Wait()

	if s.unsubscribe != nil {
		c.bestEffort(s, "remove message subscription", s.unsubscribe)
	}
	if s.agent != nil {
		c.bestEffort(s, "close authorization window", s.agent.Close)
	}

	res := Result{
		UserID:    s.userID,
		State:     s.State(),
		StartedAt: s.startedAt,
	}
	if o := s.outcome.Load(); o != nil {
		res.Err = o.err
		if res.State == Authorized {
			res.Token, res.Err = c.exchange(s, o.code)
		}
	}
	res.FinishedAt = c.now()
	s.result = res

	c.mu.Lock()
	if c.sessions[s.userID] == s {
		delete(c.sessions, s.userID)
	}
	c.mu.Unlock()

	c.metrics.AuthSessionResolved(res.State.String())
	entry := c.logger.WithFields(logging.Fields{
		"user_id":  s.userID,
		"state":    res.State.String(),
		"duration": res.FinishedAt.Sub(res.StartedAt),
	})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("Authorization session ended")
	} else {
		entry.Info("Authorization session ended")
	}
	close(s.done)
}

func (c *Coordinator) exchange(s *Session, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), c.exchangeTimeout)
	defer cancel()
	tok, err := c.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// bestEffort runs a cleanup step, logging errors and panics instead of
// propagating them
func (c *Coordinator) bestEffort(s *Session, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logging.Fields{
				"user_id": s.userID,
				"step":    step,
				"panic":   r,
			}).Error("Authorization cleanup panicked")
		}
	}()
	if err := fn(); err != nil {
		c.logger.WithError(err).WithFields(logging.Fields{
			"user_id": s.userID,
			"step":    step,
		}).Warn("Authorization cleanup failed")
	}
}

func (c *Coordinator) trusted(origin string) bool {
	_, ok := c.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
