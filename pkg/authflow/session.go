package authflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// State of an authorization session
type State int32

const (
	Idle State = iota
	Pending
	Authorized
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a session
func (s State) Terminal() bool {
	return s == Authorized || s == Failed || s == TimedOut
}

// Result is the outcome of a finished session
type Result struct {
	UserID     string
	State      State
	Token      *oauth2.Token
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// outcome is written once by whoever wins the Pending transition
type outcome struct {
	code string
	err  error
}

// Session is one authorization attempt. It is destroyed when its state
// becomes terminal and teardown has finished.
type Session struct {
	userID    string
	token     string
	startedAt time.Time

	state       atomic.Int32
	transitions atomic.Int32
	outcome     atomic.Pointer[outcome]

	// stop cancels the session context and with it every detector
	stop context.CancelCauseFunc
	ctx  context.Context

	detectors   sync.WaitGroup
	unsubscribe func() error
	agent       Agent

	done   chan struct{}
	result Result
}

func newSession(userID, token string, startedAt time.Time) *Session {
	s := &Session{
		userID:    userID,
		token:     token,
		startedAt: startedAt,
		done:      make(chan struct{}),
	}
	s.state.Store(int32(Pending))
	return s
}

// resolve moves a Pending session to a terminal state. Only the first
// caller succeeds; later calls are no-ops.
func (s *Session) resolve(to State, o outcome) bool {
	if !s.state.CompareAndSwap(int32(Pending), int32(to)) {
		return false
	}
	s.outcome.Store(&o)
	s.transitions.Add(1)
	if s.stop != nil {
		s.stop(errResolved)
	}
	return true
}

// State returns the current state
func (s *Session) State() State {
	return State(s.state.Load())
}

// UserID returns the owner of the session
func (s *Session) UserID() string {
	return s.userID
}

// CorrelationToken is the opaque value carried through the provider as the
// OAuth state parameter
func (s *Session) CorrelationToken() string {
	return s.token
}

// Transitions reports how many terminal transitions happened. It is at most 1.
func (s *Session) Transitions() int {
	return int(s.transitions.Load())
}

// Done is closed once the session reached a terminal state and teardown
// finished
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result blocks until the session is done or ctx ends
func (s *Session) Result(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
