package amos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	hostCN = "https://amos.cn.lbslm.com"
	hostUS = "https://amos.us.lbslm.com"

	loginPath      = "/admin/login.do"
	deviceListPath = "/admin/amos/searchForWeb.do"

	// authFailureMarker appears in the login response body when the cloud
	// rejects the credentials but still answers 200 without cookies.
	authFailureMarker = "AuthenticationException"

	authTimeout = 10 * time.Second
)

// HostForRegion maps a region code to the cloud host. Unrecognized codes
// fall back to CN, matching the cloud's own default.
func HostForRegion(region string) string {
	switch strings.ToUpper(region) {
	case "US":
		return hostUS
	default:
		return hostCN
	}
}

// DeviceSummary is one entry of the account's device list.
type DeviceSummary struct {
	NID   string `json:"nid"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Account is the result of a full login + device-list exchange.
type Account struct {
	Credentials Credentials
	Devices     []DeviceSummary
	PrimaryNID  string
}

// AuthService performs the username/password login flow against the Amos
// cloud and fetches the account's device list.
type AuthService struct {
	host       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAuthService creates an auth service for a region code ("CN" or "US").
func NewAuthService(region string, logger *slog.Logger) *AuthService {
	return NewAuthServiceWithHost(HostForRegion(region), logger)
}

// NewAuthServiceWithHost creates an auth service against an explicit host.
// Used by tests to point at a mock server.
func NewAuthServiceWithHost(host string, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		host: host,
		httpClient: &http.Client{
			Timeout: authTimeout,
		},
		logger: logger,
	}
}

// Login exchanges username/password for the raw session cookies.
//
// A 200 response without Set-Cookie is inspected: a body carrying the
// authentication-failure marker is ErrInvalidCredentials; anything else
// means no session was established and resolves with no cookies and no
// error. Statuses outside 2xx/3xx fail with HTTPError.
func (a *AuthService) Login(ctx context.Context, username, password string) ([]string, error) {
	form := url.Values{}
	form.Set("platform", "1")
	form.Set("areaCode", "0")
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	cookies := resp.Header.Values("Set-Cookie")
	if len(cookies) == 0 {
		if strings.Contains(string(body), authFailureMarker) {
			return nil, ErrInvalidCredentials
		}
		a.logger.Debug("Login answered without cookies",
			"component", "amos",
			"status", resp.StatusCode)
		return nil, nil
	}

	return cookies, nil
}

// FetchDevices lists the account's devices using cookie-derived auth.
// A response with a null data field resolves to an empty list.
func (a *AuthService) FetchDevices(ctx context.Context, jar Jar, uid string) ([]DeviceSummary, error) {
	query := url.Values{}
	query.Set("online", "2")
	query.Set("uid", uid)
	query.Set("draw", "1")
	query.Set("start", "0")
	query.Set("length", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+deviceListPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create device list request: %w", err)
	}
	req.Header.Set("Cookie", jar.Header())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device list request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read device list response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	var listResp struct {
		Data []DeviceSummary `json:"data"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, &InvalidResponseError{Prefix: bodyPrefix(body)}
	}

	if listResp.Data == nil {
		return []DeviceSummary{}, nil
	}
	return listResp.Data, nil
}

// GetCredentials runs the full flow: login, extract the uid, fetch the
// device list and assemble the session fields. The first device in the
// list is the primary one.
func (a *AuthService) GetCredentials(ctx context.Context, username, password string) (*Account, error) {
	cookies, err := a.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	jar := ParseCookies(cookies)

	uid, ok := jar.Get("uid")
	if !ok || uid == "" {
		return nil, ErrUIDNotFound
	}

	devices, err := a.FetchDevices(ctx, jar, uid)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	token, _ := jar.Get("token")
	sessionID, _ := jar.Get("sessionId")

	a.logger.Info("Amos login succeeded",
		"component", "amos",
		"uid", uid,
		"devices", len(devices))

	return &Account{
		Credentials: Credentials{
			Token:     token,
			UID:       uid,
			SessionID: sessionID,
		},
		Devices:    devices,
		PrimaryNID: devices[0].NID,
	}, nil
}
