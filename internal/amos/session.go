package amos

import (
	"context"
	"log/slog"
	"sync"
)

// Credentials is the tuple that authorizes device-scoped calls. Values are
// immutable once constructed and are always replaced wholesale on refresh,
// never field-patched.
type Credentials struct {
	Token     string
	UID       string
	SessionID string
}

// refreshCall is one in-flight refresh shared by every caller that arrives
// while it runs.
type refreshCall struct {
	done  chan struct{}
	creds Credentials
	err   error
}

// Session owns the active credentials for one logical cloud account and
// coordinates refresh across any number of concurrent device callers.
// Concurrent Refresh calls collapse into a single login.
type Session struct {
	auth     *AuthService
	username string
	password string
	logger   *slog.Logger

	mu       sync.Mutex
	current  Credentials
	inflight *refreshCall
}

// NewSession creates a session coordinator. Initial credentials may be the
// zero value; the first authenticated call will then trigger a refresh.
func NewSession(auth *AuthService, username, password string, initial Credentials, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		auth:     auth,
		username: username,
		password: password,
		current:  initial,
		logger:   logger,
	}
}

// Current returns the active credentials as a whole value.
func (s *Session) Current() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Refresh re-runs the login + device-list flow and installs the resulting
// credentials. If a refresh is already in flight, the caller waits on it
// instead of starting another login. The in-flight slot is cleared
// unconditionally when the attempt completes, success or failure.
func (s *Session) Refresh(ctx context.Context) (Credentials, error) {
	if s.username == "" || s.password == "" {
		return Credentials{}, ErrMissingCredentials
	}

	s.mu.Lock()
	if call := s.inflight; call != nil {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	s.inflight = call
	s.mu.Unlock()

	account, err := s.auth.GetCredentials(ctx, s.username, s.password)

	s.mu.Lock()
	if err == nil {
		s.current = account.Credentials
		call.creds = account.Credentials
	} else {
		call.err = err
	}
	s.inflight = nil
	s.mu.Unlock()
	close(call.done)

	if err != nil {
		s.logger.Error("Session refresh failed",
			"component", "amos",
			"error", err)
		return Credentials{}, err
	}

	s.logger.Info("Session refreshed",
		"component", "amos",
		"uid", call.creds.UID)
	return call.creds, nil
}
