package amos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockCloud serves a login + device list pair and counts logins.
func newMockCloud(t *testing.T, loginCount *atomic.Int32, loginDelay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/login.do":
			loginCount.Add(1)
			time.Sleep(loginDelay)
			w.Header().Add("Set-Cookie", "uid=42; Path=/")
			w.Header().Add("Set-Cookie", "token=tok-fresh; Path=/")
			w.Header().Add("Set-Cookie", "sessionId=sess-fresh; Path=/")
			w.WriteHeader(http.StatusOK)
		case "/admin/amos/searchForWeb.do":
			w.Write([]byte(`{"data":[{"nid":"n-1","name":"Living Room","model":"SD-100"}]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
}

func TestSession_Refresh(t *testing.T) {
	var logins atomic.Int32
	server := newMockCloud(t, &logins, 0)
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)
	session := NewSession(auth, "user@example.com", "secret", Credentials{}, nil)

	creds, err := session.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", creds.Token)
	assert.Equal(t, "42", creds.UID)
	assert.Equal(t, "sess-fresh", creds.SessionID)
	assert.Equal(t, creds, session.Current())
	assert.Equal(t, int32(1), logins.Load())
}

func TestSession_Refresh_MissingCredentialsConfig(t *testing.T) {
	auth := NewAuthServiceWithHost("http://localhost", nil)
	session := NewSession(auth, "", "", Credentials{}, nil)

	_, err := session.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSession_Refresh_Deduplicates(t *testing.T) {
	var logins atomic.Int32
	server := newMockCloud(t, &logins, 150*time.Millisecond)
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)
	session := NewSession(auth, "user@example.com", "secret", Credentials{}, nil)

	var wg sync.WaitGroup
	results := make([]Credentials, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = session.Refresh(context.Background())
	}()

	// Arrive while the first refresh is still talking to the cloud.
	time.Sleep(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = session.Refresh(context.Background())
	}()

	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), logins.Load(), "concurrent refreshes must share one login")
}

func TestSession_Refresh_FailurePropagatesAndClearsSlot(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/login.do" {
			logins.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)
	session := NewSession(auth, "user@example.com", "secret", Credentials{}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = session.Refresh(context.Background())
	}()
	time.Sleep(30 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = session.Refresh(context.Background())
	}()
	wg.Wait()

	// Both waiters see the same failure.
	var httpErr *HTTPError
	require.ErrorAs(t, errs[0], &httpErr)
	require.ErrorAs(t, errs[1], &httpErr)
	assert.Equal(t, int32(1), logins.Load())

	// The in-flight slot is cleared, so a later refresh starts a new login.
	_, err := session.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestSession_Refresh_ContextCancelledWhileWaiting(t *testing.T) {
	var logins atomic.Int32
	server := newMockCloud(t, &logins, 300*time.Millisecond)
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)
	session := NewSession(auth, "user@example.com", "secret", Credentials{}, nil)

	go session.Refresh(context.Background())
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
