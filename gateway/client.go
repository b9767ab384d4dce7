package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"
)

const (
	sessionTimeout     = 15 * time.Second
	certificateTimeout = 30 * time.Second
	maxConns           = 10
)

// timestampFormat is ISO-8601 with microsecond precision and a Z suffix,
// the exact shape the gateway validates.
const timestampFormat = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t the way the gateway expects in TIMESTAMP headers.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// Config stores gateway endpoint addresses and the consent manager id sent
// with every call.
type Config struct {
	SessionURL     string
	CertificateURL string
	CMID           string

	// Clock is used for TIMESTAMP headers. Defaults to the real clock.
	Clock clockwork.Clock
}

// Client talks to the upstream identity gateway.
type Client struct {
	session     *resty.Client
	certificate *resty.Client

	sessionURL     string
	certificateURL string
	cmID           string
	clock          clockwork.Clock
}

// NewClient builds a gateway client with per-operation timeouts.
func NewClient(conf Config) (*Client, error) {
	if conf.SessionURL == "" {
		return nil, trace.BadParameter("missing gateway session URL")
	}
	if conf.CertificateURL == "" {
		return nil, trace.BadParameter("missing gateway certificate URL")
	}
	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}
	client := &Client{
		session:        newRestyClient(sessionTimeout),
		certificate:    newRestyClient(certificateTimeout),
		sessionURL:     conf.SessionURL,
		certificateURL: conf.CertificateURL,
		cmID:           conf.CMID,
		clock:          conf.Clock,
	}
	return client, nil
}

func newRestyClient(timeout time.Duration) *resty.Client {
	client := resty.NewWithClient(&http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxConnsPerHost:     maxConns,
			MaxIdleConnsPerHost: maxConns,
		},
	})
	client.OnAfterResponse(onAfterResponse)
	return client
}

// onAfterResponse maps any non-2xx gateway reply to an error carrying the
// status code and whatever detail the body exposes. The error schema of the
// gateway is not stable, hence gjson probing rather than a typed result.
func onAfterResponse(_ *resty.Client, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	detail := gjson.GetBytes(resp.Body(), "message").String()
	if detail == "" {
		detail = gjson.GetBytes(resp.Body(), "error").String()
	}
	if detail == "" {
		detail = string(resp.Body())
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return trace.AccessDenied("gateway returned %v: %s", resp.Status(), detail)
	default:
		return trace.Errorf("gateway returned %v: %s", resp.Status(), detail)
	}
}

// CMID returns the consent manager id the client was configured with.
func (c *Client) CMID() string {
	return c.cmID
}

// Session performs a token call with the given grant.
func (c *Client) Session(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	var result SessionResponse
	_, err := c.session.R().
		SetContext(ctx).
		SetHeaders(c.requestHeaders()).
		SetBody(&req).
		SetResult(&result).
		Post(c.sessionURL)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if result.AccessToken == "" {
		return nil, trace.BadParameter("gateway session response contains no accessToken")
	}
	return &result, nil
}

// Certificate fetches the gateway public key. The caller supplies the full
// bearer auth header set.
func (c *Client) Certificate(ctx context.Context, headers map[string]string) (string, error) {
	var result certificateResponse
	_, err := c.certificate.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get(c.certificateURL)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if result.PublicKey == "" {
		return "", trace.NotFound("public key not found in gateway response")
	}
	return result.PublicKey, nil
}

// requestHeaders builds the unauthenticated header set for session calls.
// A fresh REQUEST-ID is minted per call and never reused, retries included.
func (c *Client) requestHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"Accept":       "*/*",
		"REQUEST-ID":   uuid.New().String(),
		"TIMESTAMP":    FormatTimestamp(c.clock.Now()),
		"X-CM-ID":      c.cmID,
	}
}
