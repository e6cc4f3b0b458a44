// Package loaderclient speaks the loader protocol against a running API.
package loaderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

const fingerprintHeader = "X-Device-Fingerprint"

// APIError is a non-2xx reply decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	now     func() time.Time
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

type Handshake struct {
	ServerPublicKey string `json:"serverPublicKey"`
	Challenge       string `json:"challenge"`
	Nonce           string `json:"nonce"`
	ExpiresIn       int64  `json:"expiresIn"`
}

type License struct {
	Key       string     `json:"key"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type Session struct {
	SessionToken      string  `json:"sessionToken"`
	RefreshToken      string  `json:"refreshToken"`
	SymmetricKey      string  `json:"symmetricKey"`
	License           License `json:"licenseInfo"`
	DeviceFingerprint string  `json:"-"`
}

type Login struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
	User         struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type BanStatus struct {
	UserID   uint    `json:"userId"`
	IsBanned bool    `json:"isBanned"`
	Reason   *string `json:"reason"`
}

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/register", nil, map[string]string{
		"username": username, "email": email, "password": password,
	}, nil)
}

func (c *Client) Login(ctx context.Context, username, password, fingerprint string) (*Login, error) {
	var out Login
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{fingerprintHeader: fingerprint},
		map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Handshake(ctx context.Context, clientVersion, fingerprint string) (*Handshake, error) {
	var out Handshake
	err := c.do(ctx, http.MethodPost, "/loader/handshake", nil, map[string]string{
		"clientVersion": clientVersion, "deviceFingerprint": fingerprint,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LoaderLogin runs a fresh handshake, proves possession of its challenge
// and exchanges credentials for a loader session.
func (c *Client) LoaderLogin(ctx context.Context, username, password, fingerprint string) (*Session, error) {
	hs, err := c.Handshake(ctx, "loader-sim/1.0", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	signed, err := security.SignChallenge(hs.ServerPublicKey, hs.Challenge, fingerprint, hs.Nonce)
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}
	var out Session
	err = c.do(ctx, http.MethodPost, "/loader/login", nil, map[string]string{
		"username":          username,
		"password":          password,
		"deviceFingerprint": fingerprint,
		"signedChallenge":   signed,
		"nonce":             hs.Nonce,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("loader login: %w", err)
	}
	out.DeviceFingerprint = fingerprint
	return &out, nil
}

// Heartbeat signs a heartbeat with the session's symmetric key. An empty
// nonce gets a fresh random one.
func (c *Client) Heartbeat(ctx context.Context, s *Session, nonce string) error {
	if nonce == "" {
		n, err := security.NewNonce()
		if err != nil {
			return err
		}
		nonce = n
	}
	ts := c.now().UnixMilli()
	return c.do(ctx, http.MethodPost, "/loader/heartbeat", nil, map[string]any{
		"sessionToken": s.SessionToken,
		"nonce":        nonce,
		"timestamp":    ts,
		"signature":    security.Sign(security.RequestSigningInput(s.SessionToken, nonce, ts), s.SymmetricKey),
	}, nil)
}

func (c *Client) BanStatus(ctx context.Context, userID uint) (*BanStatus, error) {
	var out BanStatus
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/loader/ban-status/%d", userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActivateLicense(ctx context.Context, accessToken, key, fingerprint string) error {
	return c.do(ctx, http.MethodPost, "/licenses/activate", map[string]string{
		"Authorization":   "Bearer " + accessToken,
		fingerprintHeader: fingerprint,
	}, map[string]string{"key": key}, nil)
}

// Get issues a bare GET and returns the status code.
func (c *Client) Get(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
