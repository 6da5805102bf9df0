package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	PlatformTwitter   = "twitter"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformLinkedIn  = "linkedin"
	PlatformYoutube   = "youtube"
	PlatformTiktok    = "tiktok"
	PlatformThreads   = "threads"
)

var Platforms = []string{
	PlatformTwitter,
	PlatformFacebook,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformYoutube,
	PlatformTiktok,
	PlatformThreads,
}

func IsPlatform(p string) bool {
	for _, known := range Platforms {
		if known == p {
			return true
		}
	}
	return false
}

const (
	AccountTypePersonal = "personal"
	AccountTypeBusiness = "business"
	AccountTypePage     = "page"
)

// Connection is one external account linked to a user. Token fields hold
// ciphertext and never leave the process in JSON.
type Connection struct {
	ID                   string     `db:"id" json:"id"`
	UserID               string     `db:"user_id" json:"user_id"`
	Platform             string     `db:"platform" json:"platform"`
	ExternalAccountID    string     `db:"external_account_id" json:"external_account_id"`
	OAuth2AccessToken    string     `db:"oauth2_access_token" json:"-"`
	OAuth2RefreshToken   string     `db:"oauth2_refresh_token" json:"-"`
	OAuth2ExpiresAt      *time.Time `db:"oauth2_expires_at" json:"oauth2_expires_at,omitempty"`
	OAuth1AccessToken    string     `db:"oauth1_access_token" json:"-"`
	OAuth1TokenSecret    string     `db:"oauth1_token_secret" json:"-"`
	OAuth1ExternalUserID string     `db:"oauth1_external_user_id" json:"oauth1_external_user_id,omitempty"`
	IsPrimary            bool       `db:"is_primary" json:"is_primary"`
	AccountLabel         string     `db:"account_label" json:"account_label"`
	AccountType          string     `db:"account_type" json:"account_type"`
	Metadata             Metadata   `db:"metadata" json:"metadata"`
	NeedsReauth          bool       `db:"needs_reauth" json:"needs_reauth"`
	ReauthReason         string     `db:"reauth_reason" json:"reauth_reason,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

func (c *Connection) HasOAuth2() bool {
	return c.OAuth2AccessToken != ""
}

func (c *Connection) HasOAuth1() bool {
	return c.OAuth1AccessToken != "" && c.OAuth1TokenSecret != ""
}

// Metadata is an opaque bag stored as JSONB.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("metadata: unsupported scan type")
	}

	out := Metadata{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// OAuth2Grant is the decrypted result of a code exchange or refresh.
type OAuth2Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// AccountProfile identifies the external account behind a grant.
type AccountProfile struct {
	ExternalAccountID string
	Label             string
	AccountType       string
	Metadata          Metadata
}

// ReauthEvent tells the user a connection stopped working and must be
// connected again.
type ReauthEvent struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Platform     string    `json:"platform"`
	AccountLabel string    `json:"account_label"`
	Reason       string    `json:"reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}
