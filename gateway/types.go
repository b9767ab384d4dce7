package gateway

// Grant types accepted by the session endpoint.
const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// SessionRequest is the body of a session (token) call.
//
// Exactly one of ClientSecret or RefreshToken is set, depending on the grant.
type SessionRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	GrantType    string `json:"grantType"`
}

// SessionResponse is a successful session call result.
type SessionResponse struct {
	AccessToken      string `json:"accessToken"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn,omitempty"`
	RefreshToken     string `json:"refreshToken,omitempty"`
}

type certificateResponse struct {
	PublicKey string `json:"publicKey"`
}
