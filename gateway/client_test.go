package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, gw *fakeGateway, clock clockwork.Clock) *Client {
	t.Helper()
	client, err := NewClient(Config{
		SessionURL:     gw.sessionURL(),
		CertificateURL: gw.certificateURL(),
		CMID:           "sbx",
		Clock:          clock,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{CertificateURL: "https://example.com/certs"})
	require.True(t, trace.IsBadParameter(err))

	_, err = NewClient(Config{SessionURL: "https://example.com/sessions"})
	require.True(t, trace.IsBadParameter(err))
}

func TestSession(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setSessionResponse(SessionResponse{
		AccessToken:      "token-1",
		TokenType:        "bearer",
		ExpiresIn:        1200,
		RefreshExpiresIn: 86400,
		RefreshToken:     "refresh-1",
	})
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	client := testClient(t, gw, clock)

	resp, err := client.Session(context.Background(), SessionRequest{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		GrantType:    GrantClientCredentials,
	})
	require.NoError(t, err)
	require.Equal(t, "token-1", resp.AccessToken)
	require.Equal(t, "refresh-1", resp.RefreshToken)
	require.EqualValues(t, 1200, resp.ExpiresIn)

	req, headers, ok := gw.lastSessionRequest()
	require.True(t, ok)
	require.Equal(t, "client-id", req.ClientID)
	require.Equal(t, GrantClientCredentials, req.GrantType)

	require.Equal(t, "application/json", headers.Get("Content-Type"))
	require.Equal(t, "*/*", headers.Get("Accept"))
	require.Equal(t, "sbx", headers.Get("X-CM-ID"))
	require.Equal(t, "2024-05-01T12:00:00.000000Z", headers.Get("TIMESTAMP"))
	_, err = uuid.Parse(headers.Get("REQUEST-ID"))
	require.NoError(t, err)
}

func TestSessionFreshRequestID(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setSessionResponse(SessionResponse{AccessToken: "token-1"})
	client := testClient(t, gw, clockwork.NewRealClock())

	req := SessionRequest{ClientID: "client-id", ClientSecret: "s", GrantType: GrantClientCredentials}
	_, err := client.Session(context.Background(), req)
	require.NoError(t, err)
	_, first, ok := gw.lastSessionRequest()
	require.True(t, ok)
	_, err = client.Session(context.Background(), req)
	require.NoError(t, err)
	_, second, ok := gw.lastSessionRequest()
	require.True(t, ok)

	require.NotEqual(t, first.Get("REQUEST-ID"), second.Get("REQUEST-ID"))
}

func TestSessionErrorCarriesDetail(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setSessionError(500, map[string]string{"message": "internal gateway failure"})
	client := testClient(t, gw, clockwork.NewRealClock())

	_, err := client.Session(context.Background(), SessionRequest{
		ClientID: "client-id", ClientSecret: "s", GrantType: GrantClientCredentials,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "internal gateway failure")
}

func TestSessionAccessDenied(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setSessionError(401, map[string]string{"error": "invalid client credentials"})
	client := testClient(t, gw, clockwork.NewRealClock())

	_, err := client.Session(context.Background(), SessionRequest{
		ClientID: "client-id", ClientSecret: "bad", GrantType: GrantClientCredentials,
	})
	require.True(t, trace.IsAccessDenied(err))
	require.Contains(t, err.Error(), "invalid client credentials")
}

func TestSessionEmptyAccessToken(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setSessionResponse(SessionResponse{TokenType: "bearer"})
	client := testClient(t, gw, clockwork.NewRealClock())

	_, err := client.Session(context.Background(), SessionRequest{
		ClientID: "client-id", ClientSecret: "s", GrantType: GrantClientCredentials,
	})
	require.True(t, trace.IsBadParameter(err))
}

func TestCertificate(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	gw.setPublicKey("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----")
	client := testClient(t, gw, clockwork.NewRealClock())

	key, err := client.Certificate(context.Background(), map[string]string{
		"Authorization": "Bearer token-1",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "-----BEGIN PUBLIC KEY-----"))
}

func TestCertificateMissingKey(t *testing.T) {
	gw := newFakeGateway()
	t.Cleanup(gw.Close)
	client := testClient(t, gw, clockwork.NewRealClock())

	_, err := client.Certificate(context.Background(), map[string]string{
		"Authorization": "Bearer token-1",
	})
	require.True(t, trace.IsNotFound(err))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 17, 30, 0, 123456789, time.FixedZone("IST", 5*3600+1800))
	require.Equal(t, "2024-05-01T12:00:00.123456Z", FormatTimestamp(ts))
}
