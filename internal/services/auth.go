package services

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/dashtune/internal/shared"
	"golang.org/x/oauth2"
)

// Version is reported to the server in the authorization header.
const Version = "0.3.0"

// TokenType is the scheme [oauth2.Token.SetAuthHeader] writes before the raw token.
const TokenType = "MediaBrowser"

// CredentialSource holds the signed-in user and access token.
//
// It implements [oauth2.TokenSource] so the credential is read on every call and may change between calls.
type CredentialSource struct {
	mu     sync.RWMutex
	userID string
	reuse  oauth2.TokenSource
}

var _ oauth2.TokenSource = (*CredentialSource)(nil)

// NewCredentialSource creates a source, optionally pre-populated from stored credentials.
func NewCredentialSource(userID, accessToken string) *CredentialSource {
	c := &CredentialSource{}
	if accessToken != "" {
		c.Set(userID, accessToken)
	}
	return c
}

// Token returns the current token or [shared.ErrNotAuthenticated].
func (c *CredentialSource) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.reuse == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return c.reuse.Token()
}

// UserID is the signed-in user, or "" when signed out.
func (c *CredentialSource) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Set replaces the credential.
func (c *CredentialSource) Set(userID, accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	if accessToken == "" {
		c.reuse = nil
		return
	}
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: TokenType}
	c.reuse = oauth2.ReuseTokenSource(tok, oauth2.StaticTokenSource(tok))
}

// Clear signs out.
func (c *CredentialSource) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = ""
	c.reuse = nil
}

// accessToken returns the raw token or "".
func (c *CredentialSource) accessToken() string {
	tok, err := c.Token()
	if err != nil {
		return ""
	}
	return tok.AccessToken
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Client   string
	Device   string
	DeviceID string
	Version  string
}

// Header formats the MediaBrowser authorization header, with the token when one is given.
func (ci ClientInfo) Header(token string) string {
	parts := []string{
		fmt.Sprintf("Client=%q", ci.Client),
		fmt.Sprintf("Device=%q", ci.Device),
		fmt.Sprintf("DeviceId=%q", ci.DeviceID),
		fmt.Sprintf("Version=%q", ci.Version),
	}
	if token != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", token))
	}
	return "MediaBrowser " + strings.Join(parts, ", ")
}

// AuthTransport adds the authorization header to every request.
//
// Signed-in requests go through an [oauth2.Transport], and the header it sets is rewritten into
// the MediaBrowser form. Signed-out requests still carry the client fields so the server accepts
// a sign-in.
type AuthTransport struct {
	Base   http.RoundTripper
	Info   ClientInfo
	Source *CredentialSource
}

// RoundTrip implements [http.RoundTripper].
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	header := &headerTransport{base: base, info: t.Info}

	if t.Source != nil {
		if _, err := t.Source.Token(); err == nil {
			return (&oauth2.Transport{Source: t.Source, Base: header}).RoundTrip(req)
		}
	}

	clone := req.Clone(req.Context())
	clone.Header.Del("Authorization")
	return header.RoundTrip(clone)
}

// headerTransport turns "MediaBrowser <token>" into the full MediaBrowser header.
type headerTransport struct {
	base http.RoundTripper
	info ClientInfo
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), TokenType+" ")
	if !ok {
		token = ""
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.info.Header(token))
	return t.base.RoundTrip(clone)
}

// NewAuthClient wraps base (or [http.DefaultTransport]) with an [AuthTransport].
func NewAuthClient(base http.RoundTripper, info ClientInfo, source *CredentialSource) *http.Client {
	return &http.Client{Transport: &AuthTransport{Base: base, Info: info, Source: source}}
}
