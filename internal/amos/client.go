package amos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// fragranceBasePath prefixes all regular device endpoints. Admin-style
	// endpoints (lock/unlock) bypass it and are issued host-rooted.
	fragranceBasePath = "/amosFragrance/"
	adminPathPrefix   = "/admin/"

	requestTimeout = 10 * time.Second
	maxAuthRetries = 1
)

// DeviceIdentity is the fixed identity of one diffuser. Set at client
// construction and never mutated.
type DeviceIdentity struct {
	NID      string
	Username string
	AppID    string
}

// statusCode is the envelope status field. The cloud sends it as a string
// on some endpoints and as a bare number on others, so it is normalized to
// a string while decoding.
type statusCode string

func (s *statusCode) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = statusCode(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return fmt.Errorf("status field is neither string nor number: %s", data)
	}
	*s = statusCode(asNumber.String())
	return nil
}

// ok reports whether the status is the success code.
func (s statusCode) ok() bool {
	return s == "200"
}

// authFailure reports whether the status means the session expired.
func (s statusCode) authFailure() bool {
	return s == "AuthenticationException" || s == "401"
}

// Envelope is the decoded response of a device-scoped call.
type Envelope struct {
	Status statusCode      `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// Client issues authenticated calls to device-scoped endpoints. It holds a
// cached copy of the session credentials which it discards and replaces
// after every successful refresh; session expiry is detected and repaired
// here and nowhere else.
type Client struct {
	host       string
	identity   DeviceIdentity
	session    *Session
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	creds Credentials
}

// NewClient creates a device API client. The initial credential cache is
// seeded from the session's current value.
func NewClient(host string, identity DeviceIdentity, session *Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		host:     host,
		identity: identity,
		session:  session,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
		creds:  session.Current(),
	}
}

// Identity returns the fixed device identity.
func (c *Client) Identity() DeviceIdentity {
	return c.identity
}

// credentials returns the cached credential copy as a whole value.
func (c *Client) credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// setCredentials replaces the cached credential copy wholesale.
func (c *Client) setCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// cookieHeader assembles the Cookie header from the cached credentials.
// Rebuilt on every request so a refresh takes effect on the next call.
func (c *Client) cookieHeader() string {
	creds := c.credentials()
	return fmt.Sprintf("appid=%s;uid=%s;token=%s;SESSIONID=%s;username=%s",
		c.identity.AppID, creds.UID, creds.Token, creds.SessionID, c.identity.Username)
}

// Call issues a GET to a device endpoint with the given extra query
// parameters. On an authentication failure it asks the session for a
// refresh and retries exactly once; a second auth failure is terminal.
func (c *Client) Call(ctx context.Context, path string, params map[string]string) (*Envelope, error) {
	for attempt := 0; attempt <= maxAuthRetries; attempt++ {
		envelope, err := c.doCall(ctx, path, params)
		if err != nil {
			return nil, err
		}

		switch {
		case envelope.Status.ok():
			return envelope, nil

		case envelope.Status.authFailure():
			if attempt >= maxAuthRetries {
				return nil, ErrAuthExhausted
			}
			c.logger.Info("Session expired, refreshing",
				"component", "amos",
				"nid", c.identity.NID,
				"path", path)
			creds, err := c.session.Refresh(ctx)
			if err != nil {
				return nil, fmt.Errorf("session refresh failed: %w", err)
			}
			c.setCredentials(creds)

		default:
			return nil, &APIStatusError{
				Status: string(envelope.Status),
				Body:   string(envelope.Data),
			}
		}
	}

	return nil, ErrAuthExhausted
}

// doCall performs one HTTP exchange and decodes the envelope. It does not
// classify the envelope status; Call does.
func (c *Client) doCall(ctx context.Context, path string, params map[string]string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", c.cookieHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Prefix: bodyPrefix(body)}
	}

	return &envelope, nil
}

// buildURL joins the endpoint path with the merged query parameters. The
// device nid and a fractional epoch timestamp are injected last so caller
// params can never displace them.
func (c *Client) buildURL(path string, params map[string]string) string {
	base := c.host + fragranceBasePath + path
	if strings.HasPrefix(path, adminPathPrefix) {
		base = c.host + path
	}

	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("nid", c.identity.NID)
	query.Set("timestamp", epochSeconds())

	return base + "?" + query.Encode()
}

// epochSeconds formats the current time as unix seconds with a fractional
// millisecond part, the format the cloud expects in the timestamp param.
func epochSeconds() string {
	return strconv.FormatFloat(float64(time.Now().UnixMilli())/1000, 'f', 3, 64)
}
