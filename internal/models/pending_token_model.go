package models

import "time"

const PendingTokenTTL = 15 * time.Minute

// PendingRequestToken bridges the OAuth1 request-token and access-token
// steps. RequestTokenSecret is stored encrypted.
type PendingRequestToken struct {
	RequestToken       string    `db:"request_token"`
	RequestTokenSecret string    `db:"request_token_secret"`
	UserID             string    `db:"user_id"`
	RedirectURI        string    `db:"redirect_uri"`
	CreatedAt          time.Time `db:"created_at"`
}

func (p *PendingRequestToken) Expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > PendingTokenTTL
}
