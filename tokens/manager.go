package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/healthbridge/abdm-broker/gateway"
	"github.com/healthbridge/abdm-broker/lib/logger"
)

const (
	defaultRefreshBuffer   = 120 * time.Second
	defaultRefreshInterval = 15 * time.Minute
)

var (
	// ErrRefreshFailed means an expiring credential could not be renewed by
	// any available path. The stored record is left untouched so a later
	// retry can attempt the same recovery.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrCreationFailed means issuing a new credential was rejected by the
	// gateway or it was unreachable.
	ErrCreationFailed = errors.New("credential creation failed")
)

// SessionAPI is the slice of the gateway client the manager depends on.
type SessionAPI interface {
	Session(ctx context.Context, req gateway.SessionRequest) (*gateway.SessionResponse, error)
}

// Config stores the dependencies and tunables of a Manager.
type Config struct {
	Store   Store
	Gateway SessionAPI
	// CMID is sent in the X-CM-ID header of AuthHeaders output.
	CMID string
	// RefreshBuffer is the safety margin before true expiry at which the
	// credential is treated as due for renewal.
	RefreshBuffer time.Duration
	// RefreshInterval is the period of the proactive background refresh.
	RefreshInterval time.Duration
	Clock           clockwork.Clock
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Store == nil {
		return trace.BadParameter("missing Store")
	}
	if c.Gateway == nil {
		return trace.BadParameter("missing Gateway")
	}
	if c.RefreshBuffer < 0 {
		return trace.BadParameter("RefreshBuffer must not be negative")
	}
	if c.RefreshBuffer == 0 {
		c.RefreshBuffer = defaultRefreshBuffer
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Manager owns the credential lifecycle: it decides when the persisted
// record is still usable, when to exchange the refresh token, and when to
// fall back to full re-issuance from the retained client secret.
type Manager struct {
	store           Store
	gateway         SessionAPI
	cmID            string
	refreshBuffer   time.Duration
	refreshInterval time.Duration
	clock           clockwork.Clock

	// mu serializes every read-evaluate-renew-write cycle so no caller
	// observes a half-written record.
	mu sync.Mutex
}

func NewManager(conf Config) (*Manager, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Manager{
		store:           conf.Store,
		gateway:         conf.Gateway,
		cmID:            conf.CMID,
		refreshBuffer:   conf.RefreshBuffer,
		refreshInterval: conf.RefreshInterval,
		clock:           conf.Clock,
	}, nil
}

// Issue obtains a wholly new credential with a client-credentials grant and
// replaces any existing record unconditionally.
func (m *Manager) Issue(ctx context.Context, clientID, clientSecret string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.gateway.Session(ctx, gateway.SessionRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		GrantType:    gateway.GrantClientCredentials,
	})
	if err != nil {
		return nil, trace.Wrap(fmt.Errorf("%w: %v", ErrCreationFailed, err))
	}

	now := m.clock.Now().UTC()
	record := &Record{
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		AccessToken:      resp.AccessToken,
		TokenType:        resp.TokenType,
		RefreshToken:     resp.RefreshToken,
		IssuedAt:         now.Unix(),
		ExpiresIn:        resp.ExpiresIn,
		RefreshExpiresIn: resp.RefreshExpiresIn,
		CreatedAt:        now,
	}
	if err := m.store.PutRecord(ctx, record); err != nil {
		return nil, trace.Wrap(err)
	}
	logger.Get(ctx).WithField("client_id", clientID).Info("New credential issued")
	return record, nil
}

// GetValidToken returns a record guaranteed not to be within the refresh
// buffer of expiry at return time, renewing it first when needed.
//
// It fails with a not-found error when no record has ever been issued, and
// with ErrRefreshFailed when the record is due and no renewal path works.
func (m *Manager) GetValidToken(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.store.GetRecord(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !record.IsDue(m.clock.Now(), m.refreshBuffer) {
		return record, nil
	}

	renewed, err := m.renewLocked(ctx, record)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return renewed, nil
}

// renewLocked walks the recovery chain: refresh grant first, then full
// re-issuance from the retained secret. Called with mu held.
func (m *Manager) renewLocked(ctx context.Context, record *Record) (*Record, error) {
	log := logger.Get(ctx)

	if record.RefreshToken != "" {
		resp, err := m.gateway.Session(ctx, gateway.SessionRequest{
			ClientID:     record.ClientID,
			RefreshToken: record.RefreshToken,
			GrantType:    gateway.GrantRefreshToken,
		})
		if err == nil {
			log.Info("Credential renewed with a refresh grant")
			return m.replaceTokenLocked(ctx, record, resp)
		}
		if record.ClientSecret == "" {
			return nil, trace.Wrap(fmt.Errorf("%w: %v", ErrRefreshFailed, err))
		}
		log.WithError(err).Warn("Refresh grant failed, falling back to re-issuance")
	}

	if record.ClientSecret == "" {
		return nil, trace.Wrap(fmt.Errorf("%w: no refresh token and no client secret retained", ErrRefreshFailed))
	}

	resp, err := m.gateway.Session(ctx, gateway.SessionRequest{
		ClientID:     record.ClientID,
		ClientSecret: record.ClientSecret,
		GrantType:    gateway.GrantClientCredentials,
	})
	if err != nil {
		return nil, trace.Wrap(fmt.Errorf("%w: %v", ErrRefreshFailed, err))
	}
	log.Info("Credential renewed with a full re-issuance")
	return m.replaceTokenLocked(ctx, record, resp)
}

// replaceTokenLocked rewrites the record with new token fields, preserving
// the issuing identity and creation audit data. The write replaces the
// whole record; there is no field-level patching.
func (m *Manager) replaceTokenLocked(ctx context.Context, prev *Record, resp *gateway.SessionResponse) (*Record, error) {
	now := m.clock.Now().UTC()
	next := *prev
	next.AccessToken = resp.AccessToken
	next.TokenType = resp.TokenType
	next.RefreshToken = resp.RefreshToken
	next.IssuedAt = now.Unix()
	next.ExpiresIn = resp.ExpiresIn
	next.RefreshExpiresIn = resp.RefreshExpiresIn
	next.RefreshedAt = &now
	if err := m.store.PutRecord(ctx, &next); err != nil {
		return nil, trace.Wrap(err)
	}
	return &next, nil
}

// GetAccessToken is a thin projection of GetValidToken.
func (m *Manager) GetAccessToken(ctx context.Context) (token string, tokenType string, err error) {
	record, err := m.GetValidToken(ctx)
	if err != nil {
		return "", "", trace.Wrap(err)
	}
	return record.AccessToken, record.TokenType, nil
}

// AuthHeaders returns a full header set for calling the upstream gateway.
// Every call mints a new REQUEST-ID, retries included.
func (m *Manager) AuthHeaders(ctx context.Context) (map[string]string, error) {
	record, err := m.GetValidToken(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return map[string]string{
		"Content-Type":   "application/json",
		"Accept":         "*/*",
		"Authorization":  "Bearer " + record.AccessToken,
		"REQUEST-ID":     uuid.New().String(),
		"TIMESTAMP":      gateway.FormatTimestamp(m.clock.Now()),
		"X-CM-ID":        m.cmID,
		"X-Token-Expiry": record.ExpiresAt().UTC().Format(time.RFC3339),
	}, nil
}

// RecordInfo is the redacted external view of the credential, with derived
// expiry fields.
type RecordInfo struct {
	Record
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds int64     `json:"remainingSeconds"`
}

// Describe returns the redacted view of a valid credential.
func (m *Manager) Describe(ctx context.Context) (*RecordInfo, error) {
	record, err := m.GetValidToken(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	remaining := record.ExpiresAt().Unix() - m.clock.Now().Unix()
	if remaining < 0 {
		remaining = 0
	}
	return &RecordInfo{
		Record:           *record.Redacted(),
		ExpiresAt:        record.ExpiresAt().UTC(),
		RemainingSeconds: remaining,
	}, nil
}

// Credential health statuses.
const (
	StatusNotFound      = "not_found"
	StatusExpiringSoon  = "expiring_soon"
	StatusValid         = "valid"
	StatusInvalidFormat = "invalid_format"
)

// Health describes the persisted credential without touching the gateway.
type Health struct {
	Exists bool   `json:"tokenExists"`
	Status string `json:"tokenStatus"`
}

// HealthCheck never fails: a malformed persisted record yields the
// invalid_format status rather than an error.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	record, err := m.store.GetRecord(ctx)
	switch {
	case trace.IsNotFound(err):
		return Health{Exists: false, Status: StatusNotFound}
	case err != nil:
		return Health{Exists: true, Status: StatusInvalidFormat}
	case record.IsDue(m.clock.Now(), m.refreshBuffer):
		return Health{Exists: true, Status: StatusExpiringSoon}
	default:
		return Health{Exists: true, Status: StatusValid}
	}
}
