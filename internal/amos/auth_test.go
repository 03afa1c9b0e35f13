package amos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostForRegion(t *testing.T) {
	tests := []struct {
		region string
		want   string
	}{
		{"CN", "https://amos.cn.lbslm.com"},
		{"US", "https://amos.us.lbslm.com"},
		{"us", "https://amos.us.lbslm.com"},
		{"EU", "https://amos.cn.lbslm.com"},
		{"", "https://amos.cn.lbslm.com"},
		{"whatever", "https://amos.cn.lbslm.com"},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			assert.Equal(t, tt.want, HostForRegion(tt.region))
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/admin/login.do", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1", r.PostForm.Get("platform"))
		assert.Equal(t, "0", r.PostForm.Get("areaCode"))
		assert.Equal(t, "user@example.com", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))

		w.Header().Add("Set-Cookie", "uid=42; Path=/")
		w.Header().Add("Set-Cookie", "token=tok-1; Path=/")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	cookies, err := auth.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.Len(t, cookies, 2)
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	// 200 without Set-Cookie but with the failure marker in the body is a
	// hard credential rejection.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html>org.apache.shiro.authc.AuthenticationException: bad login</html>`))
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	cookies, err := auth.Login(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, cookies)
}

func TestAuthService_Login_NoCookiesNoMarker(t *testing.T) {
	// 200 without cookies and a clean body means no session was
	// established, which is not an error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	cookies, err := auth.Login(context.Background(), "user@example.com", "secret")
	assert.NoError(t, err)
	assert.Nil(t, cookies)
}

func TestAuthService_Login_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	_, err := auth.Login(context.Background(), "user@example.com", "secret")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestAuthService_FetchDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/amos/searchForWeb.do", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("online"))
		assert.Equal(t, "42", r.URL.Query().Get("uid"))
		assert.Equal(t, "1", r.URL.Query().Get("draw"))
		assert.NotEmpty(t, r.Header.Get("Cookie"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"nid":"n-1","name":"Living Room","model":"SD-100"},{"nid":"n-2","name":"Office","model":"SD-100"}]}`))
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)
	jar := ParseCookies([]string{"uid=42; Path=/"})

	devices, err := auth.FetchDevices(context.Background(), jar, "42")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "n-1", devices[0].NID)
	assert.Equal(t, "Living Room", devices[0].Name)
}

func TestAuthService_FetchDevices_NullData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	devices, err := auth.FetchDevices(context.Background(), ParseCookies(nil), "42")
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestAuthService_FetchDevices_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	_, err := auth.FetchDevices(context.Background(), ParseCookies(nil), "42")

	var parseErr *InvalidResponseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Prefix, "<html>")
}

func TestAuthService_GetCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/login.do":
			w.Header().Add("Set-Cookie", "uid=42; Path=/")
			w.Header().Add("Set-Cookie", "token=tok-1; Path=/")
			w.Header().Add("Set-Cookie", "sessionId=sess-1; Path=/")
			w.WriteHeader(http.StatusOK)
		case "/admin/amos/searchForWeb.do":
			w.Write([]byte(`{"data":[{"nid":"n-1","name":"Living Room","model":"SD-100"}]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	account, err := auth.GetCredentials(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", account.Credentials.Token)
	assert.Equal(t, "42", account.Credentials.UID)
	assert.Equal(t, "sess-1", account.Credentials.SessionID)
	assert.Equal(t, "n-1", account.PrimaryNID)
	assert.Len(t, account.Devices, 1)
}

func TestAuthService_GetCredentials_UIDMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "token=tok-1; Path=/")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	_, err := auth.GetCredentials(context.Background(), "user@example.com", "secret")
	assert.ErrorIs(t, err, ErrUIDNotFound)
}

func TestAuthService_GetCredentials_NoDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/login.do":
			w.Header().Add("Set-Cookie", "uid=42; Path=/")
			w.Header().Add("Set-Cookie", "token=tok-1; Path=/")
			w.WriteHeader(http.StatusOK)
		case "/admin/amos/searchForWeb.do":
			w.Write([]byte(`{"data":[]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	auth := NewAuthServiceWithHost(server.URL, nil)

	_, err := auth.GetCredentials(context.Background(), "user@example.com", "secret")
	assert.ErrorIs(t, err, ErrNoDevices)
}
