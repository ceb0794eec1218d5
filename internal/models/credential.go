package models

import (
	"fmt"
	"net/url"
	"time"
)

// Credential is a signed-in account on a catalog server.
type Credential struct {
	ServerURL   string    `json:"server_url"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	AccessToken string    `json:"-"`
	DeviceID    string    `json:"device_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks that the credential can be used to sign requests.
func (c Credential) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("credential server url %q is not absolute", c.ServerURL)
	}
	if c.UserID == "" {
		return fmt.Errorf("credential has no user id")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("credential has no access token")
	}
	return nil
}
