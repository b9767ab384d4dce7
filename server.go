package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/healthbridge/abdm-broker/keycache"
	"github.com/healthbridge/abdm-broker/lib/logger"
	"github.com/healthbridge/abdm-broker/tokens"
)

// APIServer is the thin HTTP layer over the token manager and key cache.
type APIServer struct {
	conf   HTTPConfig
	tokens *tokens.Manager
	keys   *keycache.Cache
	srv    *http.Server
}

func NewAPIServer(conf HTTPConfig, tokenManager *tokens.Manager, keyCache *keycache.Cache) *APIServer {
	server := &APIServer{
		conf:   conf,
		tokens: tokenManager,
		keys:   keyCache,
	}

	router := httprouter.New()
	router.POST("/tokens", server.onIssueToken)
	router.GET("/tokens/current", server.onDescribeToken)
	router.GET("/tokens/access", server.onAccessToken)
	router.GET("/tokens/headers", server.onAuthHeaders)
	router.GET("/health", server.onHealth)
	router.POST("/encrypt", server.onEncrypt)
	router.GET("/keys/current", server.onCurrentKey)
	router.POST("/keys/refresh", server.onRefreshKey)

	server.srv = &http.Server{Addr: conf.Listen, Handler: router}
	return server
}

// Run serves the API until the server is shut down.
func (s *APIServer) Run(ctx context.Context) error {
	log := logger.Get(ctx)
	log.Infof("Broker API listening on %s", s.conf.Listen)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return trace.Wrap(err)
	}
	return nil
}

// ShutdownServer stops accepting connections and drains in-flight requests.
func (s *APIServer) ShutdownServer(ctx context.Context) error {
	return trace.Wrap(s.srv.Shutdown(ctx))
}

type issueTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

type encryptRequest struct {
	Data string `json:"data"`
}

type encryptResponse struct {
	EncryptedData string `json:"encryptedData"`
}

type keyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (s *APIServer) onIssueToken(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(rw, trace.BadParameter("malformed request body: %v", err))
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		respondError(rw, trace.BadParameter("clientId and clientSecret are required"))
		return
	}
	record, err := s.tokens.Issue(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusCreated, record.Redacted())
}

func (s *APIServer) onDescribeToken(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info, err := s.tokens.Describe(r.Context())
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, info)
}

func (s *APIServer) onAccessToken(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token, tokenType, err := s.tokens.GetAccessToken(r.Context())
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, accessTokenResponse{AccessToken: token, TokenType: tokenType})
}

func (s *APIServer) onAuthHeaders(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	headers, err := s.tokens.AuthHeaders(r.Context())
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, headers)
}

func (s *APIServer) onHealth(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	respondJSON(rw, http.StatusOK, s.tokens.HealthCheck(r.Context()))
}

func (s *APIServer) onEncrypt(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req encryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(rw, trace.BadParameter("malformed request body: %v", err))
		return
	}
	if req.Data == "" {
		respondError(rw, trace.BadParameter("data is required"))
		return
	}
	encrypted, err := s.keys.Encrypt(r.Context(), req.Data)
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, encryptResponse{EncryptedData: encrypted})
}

func (s *APIServer) onCurrentKey(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key, err := s.keys.GetKey(r.Context(), false)
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, keyResponse{PublicKey: key})
}

func (s *APIServer) onRefreshKey(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	key, err := s.keys.GetKey(r.Context(), true)
	if err != nil {
		respondError(rw, err)
		return
	}
	respondJSON(rw, http.StatusOK, keyResponse{PublicKey: key})
}

func respondJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		logger.Standard().WithError(err).Error("Failed to encode API response")
	}
}

func respondError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case trace.IsNotFound(err):
		status = http.StatusNotFound
	case trace.IsBadParameter(err):
		status = http.StatusBadRequest
	case errors.Is(err, tokens.ErrRefreshFailed),
		errors.Is(err, tokens.ErrCreationFailed),
		errors.Is(err, keycache.ErrKeyUnavailable),
		errors.Is(err, keycache.ErrEncryption):
		status = http.StatusBadGateway
	}
	respondJSON(rw, status, map[string]string{"error": err.Error()})
}
