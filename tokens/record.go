package tokens

import (
	"context"
	"time"
)

// Redaction is what read paths exposed outside the process show instead of
// the client secret.
const Redaction = "********"

// defaultExpiresIn is assumed when the gateway omits expiresIn, rather than
// treating the token as eternally valid.
const defaultExpiresIn = 1200

// Record is the single persisted credential set: the current token together
// with the identity and secret that issued it.
type Record struct {
	ClientID         string     `json:"clientId"`
	ClientSecret     string     `json:"clientSecret,omitempty"`
	AccessToken      string     `json:"accessToken"`
	TokenType        string     `json:"tokenType"`
	RefreshToken     string     `json:"refreshToken,omitempty"`
	IssuedAt         int64      `json:"issuedAt"`
	ExpiresIn        int64      `json:"expiresIn"`
	RefreshExpiresIn int64      `json:"refreshExpiresIn,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	RefreshedAt      *time.Time `json:"refreshedAt,omitempty"`
}

func (r *Record) expiresIn() int64 {
	if r.ExpiresIn <= 0 {
		return defaultExpiresIn
	}
	return r.ExpiresIn
}

// ExpiresAt is the authoritative expiry instant: issue time plus lifetime,
// both in integer seconds since epoch.
func (r *Record) ExpiresAt() time.Time {
	return time.Unix(r.IssuedAt+r.expiresIn(), 0)
}

// IsDue reports whether the token is within buffer of expiry, or past it.
func (r *Record) IsDue(now time.Time, buffer time.Duration) bool {
	return now.Unix()+int64(buffer/time.Second) >= r.IssuedAt+r.expiresIn()
}

// Redacted returns a copy safe to hand across an external boundary.
func (r *Record) Redacted() *Record {
	out := *r
	if out.ClientSecret != "" {
		out.ClientSecret = Redaction
	}
	return &out
}

// Store persists the singleton credential record. PutRecord replaces the
// record wholesale; implementations must never do field-level patches.
type Store interface {
	GetRecord(context.Context) (*Record, error)
	PutRecord(context.Context, *Record) error
}
