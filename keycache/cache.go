package keycache

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

const (
	defaultHorizon       = 180 * 24 * time.Hour
	defaultCheckInterval = 24 * time.Hour
	// expiryProximity is how close to the horizon the daily check refetches.
	expiryProximity = 7 * 24 * time.Hour
)

const pemHeader = "-----BEGIN PUBLIC KEY-----"

var (
	// ErrKeyUnavailable means the public key could not be obtained or parsed,
	// including the case where auth headers for the fetch could not be prepared.
	ErrKeyUnavailable = errors.New("public key unavailable")
	// ErrEncryption means the cryptographic operation itself failed.
	ErrEncryption = errors.New("encryption failed")
)

// HeaderProvider supplies gateway auth headers; implemented by tokens.Manager.
type HeaderProvider interface {
	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// CertificateAPI is the slice of the gateway client the cache depends on.
type CertificateAPI interface {
	Certificate(ctx context.Context, headers map[string]string) (string, error)
}

// Config stores the dependencies and tunables of a Cache.
type Config struct {
	Headers HeaderProvider
	Gateway CertificateAPI
	// KeyFile is where the PEM copy is persisted. A small metadata sidecar
	// recording the true fetch time lives next to it.
	KeyFile string
	// Horizon is the validity period assigned to a freshly fetched key.
	Horizon time.Duration
	// CheckInterval is the period of the expiry-proximity rotation check.
	CheckInterval time.Duration
	Clock         clockwork.Clock
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Headers == nil {
		return trace.BadParameter("missing Headers")
	}
	if c.Gateway == nil {
		return trace.BadParameter("missing Gateway")
	}
	if c.KeyFile == "" {
		return trace.BadParameter("missing KeyFile")
	}
	if c.Horizon == 0 {
		c.Horizon = defaultHorizon
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Cache holds the single gateway public key with a long validity horizon,
// independent of the token lifecycle. All fetches collapse through a
// single-flight group: the certificate endpoint is rate-sensitive and
// redundant fetches are not acceptable.
type Cache struct {
	headers       HeaderProvider
	gateway       CertificateAPI
	keyFile       string
	metaFile      string
	horizon       time.Duration
	checkInterval time.Duration
	clock         clockwork.Clock

	group singleflight.Group

	mu        sync.RWMutex // guards the slot below
	pemKey    string
	fetchedAt time.Time
	expiresAt time.Time
}

// keyMetadata is the sidecar persisted next to the PEM so cold starts honor
// the true fetch time instead of re-baselining the horizon from "now".
type keyMetadata struct {
	FetchedAt time.Time `json:"fetchedAt"`
}

func NewCache(conf Config) (*Cache, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Cache{
		headers:       conf.Headers,
		gateway:       conf.Gateway,
		keyFile:       conf.KeyFile,
		metaFile:      conf.KeyFile + ".meta",
		horizon:       conf.Horizon,
		checkInterval: conf.CheckInterval,
		clock:         conf.Clock,
	}, nil
}

// GetKey returns the current PEM public key: the in-memory copy when it is
// within its horizon, the durable copy on a cold start, or a fresh fetch.
func (c *Cache) GetKey(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		key, err := c.fetch(ctx)
		return key, trace.Wrap(err)
	}

	c.mu.RLock()
	pemKey, expiresAt := c.pemKey, c.expiresAt
	c.mu.RUnlock()
	if pemKey != "" && c.clock.Now().Before(expiresAt) {
		return pemKey, nil
	}

	if key, ok := c.loadFromDisk(ctx); ok {
		return key, nil
	}

	key, err := c.fetch(ctx)
	return key, trace.Wrap(err)
}

// loadFromDisk warms the slot from the durable copy. A key whose recorded
// fetch time has already elapsed the horizon is not trusted; a legacy PEM
// with no metadata sidecar is re-baselined from now.
func (c *Cache) loadFromDisk(ctx context.Context) (string, bool) {
	payload, err := os.ReadFile(c.keyFile)
	if err != nil {
		return "", false
	}
	pemKey := string(payload)

	fetchedAt := c.clock.Now().UTC()
	if meta, err := os.ReadFile(c.metaFile); err == nil {
		var parsed keyMetadata
		if err := json.Unmarshal(meta, &parsed); err == nil && !parsed.FetchedAt.IsZero() {
			fetchedAt = parsed.FetchedAt
		}
	}
	expiresAt := fetchedAt.Add(c.horizon)
	if !c.clock.Now().Before(expiresAt) {
		return "", false
	}

	c.mu.Lock()
	c.pemKey, c.fetchedAt, c.expiresAt = pemKey, fetchedAt, expiresAt
	c.mu.Unlock()
	logger.Get(ctx).Debug("Public key loaded from durable storage")
	return pemKey, true
}

// fetch performs the authenticated certificate call. Concurrent callers
// share a single in-flight request and its result.
func (c *Cache) fetch(ctx context.Context) (string, error) {
	key, err, _ := c.group.Do("public-key", func() (interface{}, error) {
		headers, err := c.headers.AuthHeaders(ctx)
		if err != nil {
			return nil, trace.Wrap(fmt.Errorf("%w: preparing auth headers: %v", ErrKeyUnavailable, err))
		}
		raw, err := c.gateway.Certificate(ctx, headers)
		if err != nil {
			return nil, trace.Wrap(fmt.Errorf("%w: %v", ErrKeyUnavailable, err))
		}
		pemKey := normalizePEM(raw)
		now := c.clock.Now().UTC()
		if err := c.persist(pemKey, now); err != nil {
			return nil, trace.Wrap(fmt.Errorf("%w: %v", ErrKeyUnavailable, err))
		}
		c.mu.Lock()
		c.pemKey, c.fetchedAt, c.expiresAt = pemKey, now, now.Add(c.horizon)
		c.mu.Unlock()
		logger.Get(ctx).Info("Public key fetched and cached")
		return pemKey, nil
	})
	if err != nil {
		return "", trace.Wrap(err)
	}
	return key.(string), nil
}

func (c *Cache) persist(pemKey string, fetchedAt time.Time) error {
	if err := os.WriteFile(c.keyFile, []byte(pemKey), 0600); err != nil {
		return trace.ConvertSystemError(err)
	}
	meta, err := json.Marshal(keyMetadata{FetchedAt: fetchedAt})
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.ConvertSystemError(os.WriteFile(c.metaFile, meta, 0600))
}

// normalizePEM wraps a bare base64 key body in the standard armor when the
// gateway returns it unarmored.
func normalizePEM(raw string) string {
	if strings.HasPrefix(strings.TrimSpace(raw), pemHeader) {
		return raw
	}
	return pemHeader + "\n" + raw + "\n-----END PUBLIC KEY-----"
}

// Encrypt encrypts plaintext with the cached public key using RSA-OAEP with
// a SHA-1 digest and SHA-1-based mask generation, no label. The gateway's
// server side mandates this exact padding and rejects anything else.
func (c *Cache) Encrypt(ctx context.Context, plaintext string) (string, error) {
	pemKey, err := c.GetKey(ctx, false)
	if err != nil {
		return "", trace.Wrap(fmt.Errorf("%w: %v", ErrEncryption, err))
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return "", trace.Wrap(fmt.Errorf("%w: cached key is not valid PEM", ErrEncryption))
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", trace.Wrap(fmt.Errorf("%w: %v", ErrEncryption, err))
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", trace.Wrap(fmt.Errorf("%w: public key is %T, expected RSA", ErrEncryption, parsed))
	}

	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, publicKey, []byte(plaintext), nil)
	if err != nil {
		return "", trace.Wrap(fmt.Errorf("%w: %v", ErrEncryption, err))
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
