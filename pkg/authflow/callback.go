package authflow

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/amosWeiskopf/seowatch/internal/logging"
)

const callbackPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>SEOWatch</title></head>
<body><p>Authorization received. You can close this window.</p>
<script>window.close()</script></body></html>`

// CallbackServer is the MessageChannel backed by HTTP. The provider
// redirects to the callback path; an opener page may also relay a window
// message as JSON to the message path with its Origin header.
type CallbackServer struct {
	origin       string
	callbackPath string
	messagePath  string
	logger       logging.Logger

	mu   sync.Mutex
	subs map[string]chan Message
}

// NewCallbackServer serves redirects for redirectURL. Redirect messages are
// attributed to the redirect URL's origin.
func NewCallbackServer(redirectURL string, logger logging.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("redirect url must be absolute: %q", redirectURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		origin:       u.Scheme + "://" + u.Host,
		callbackPath: path,
		messagePath:  "/oauth/message",
		logger:       logger,
		subs:         make(map[string]chan Message),
	}, nil
}

// Origin returns the origin redirect messages are attributed to
func (s *CallbackServer) Origin() string {
	return s.origin
}

// Register mounts the callback and message routes
func (s *CallbackServer) Register(r gin.IRoutes) {
	r.GET(s.callbackPath, s.handleRedirect)
	r.POST(s.messagePath, s.handleMessage)
}

// Subscribe implements MessageChannel
func (s *CallbackServer) Subscribe(token string) (<-chan Message, func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[token]; ok {
		return nil, nil, fmt.Errorf("token already subscribed")
	}
	ch := make(chan Message, 4)
	s.subs[token] = ch

	var once sync.Once
	unsubscribe := func() error {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, token)
			close(ch)
		})
		return nil
	}
	return ch, unsubscribe, nil
}

// Publish hands msg to the subscriber of msg.State. It reports false when
// nobody waits for that state.
func (s *CallbackServer) Publish(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[msg.State]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
		s.logger.Warn("Dropping authorization message, subscriber is not reading")
	}
	return true
}

func (s *CallbackServer) handleRedirect(c *gin.Context) {
	msg := Message{
		Origin: s.origin,
		State:  c.Query("state"),
		Code:   c.Query("code"),
		Error:  c.Query("error"),
	}
	if !s.Publish(msg) {
		c.String(http.StatusNotFound, "unknown or expired authorization request")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(callbackPage))
}

func (s *CallbackServer) handleMessage(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}
	msg.Origin = c.GetHeader("Origin")
	if !s.Publish(msg) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or expired authorization request"})
		return
	}
	c.Status(http.StatusAccepted)
}
