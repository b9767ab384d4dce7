package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// fakeGateway is a minimal stand-in for the upstream identity gateway,
// serving the session and certificate endpoints over httptest.
type fakeGateway struct {
	srv    *httptest.Server
	router *httprouter.Router

	mu              sync.Mutex
	sessionRequests []SessionRequest
	sessionHeaders  []http.Header
	sessionStatus   int
	sessionBody     interface{}
	publicKey       string
}

func newFakeGateway() *fakeGateway {
	router := httprouter.New()
	gw := &fakeGateway{
		router:        router,
		sessionStatus: http.StatusOK,
	}
	gw.srv = httptest.NewServer(router)

	router.POST("/gateway/v0.5/sessions", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, "invalid session request", http.StatusBadRequest)
			return
		}
		gw.mu.Lock()
		gw.sessionRequests = append(gw.sessionRequests, req)
		gw.sessionHeaders = append(gw.sessionHeaders, r.Header.Clone())
		status, body := gw.sessionStatus, gw.sessionBody
		gw.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		json.NewEncoder(rw).Encode(body)
	})
	router.GET("/gateway/v0.5/certs", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gw.mu.Lock()
		publicKey := gw.publicKey
		gw.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(certificateResponse{PublicKey: publicKey})
	})
	return gw
}

func (gw *fakeGateway) Close() {
	gw.srv.Close()
}

func (gw *fakeGateway) sessionURL() string {
	return gw.srv.URL + "/gateway/v0.5/sessions"
}

func (gw *fakeGateway) certificateURL() string {
	return gw.srv.URL + "/gateway/v0.5/certs"
}

func (gw *fakeGateway) setSessionResponse(resp SessionResponse) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.sessionStatus = http.StatusOK
	gw.sessionBody = resp
}

func (gw *fakeGateway) setSessionError(status int, body interface{}) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.sessionStatus = status
	gw.sessionBody = body
}

func (gw *fakeGateway) setPublicKey(publicKey string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.publicKey = publicKey
}

func (gw *fakeGateway) lastSessionRequest() (SessionRequest, http.Header, bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.sessionRequests) == 0 {
		return SessionRequest{}, nil, false
	}
	last := len(gw.sessionRequests) - 1
	return gw.sessionRequests[last], gw.sessionHeaders[last], true
}
