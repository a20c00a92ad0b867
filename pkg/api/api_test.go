package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/authority"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage/memory"
)

func newTestHandler(adm *admission.Controller) (*Handler, storage.Interface) {
	store := memory.NewStore()
	ctrl := relay.NewController(relay.Options{}, store, authority.New("test-secret"), adm, nil)
	return NewHandler(nil, store, ctrl, adm), store
}

func doRequest(h *Handler, method, target string, handler func(echo.Context) error, params ...string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	_ = handler(c)
	return rec
}

func TestCreateSessionEndpoint(t *testing.T) {
	h, store := newTestHandler(nil)

	rec := doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id, _ := body["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "pending", body["status"])

	tokens, ok := body["tokens"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, tokens["agent"])
	assert.NotEmpty(t, tokens["mobile"])

	_, err := store.Sessions().FindByID(id)
	assert.NoError(t, err)
}

func TestCreateSessionRateLimited(t *testing.T) {
	adm := admission.NewController(admission.Limits{
		RequestWindow:    time.Minute,
		MaxRequests:      0,
		MaxConnsPerIP:    10,
		MaxSessionsPerIP: 10,
	})
	defer adm.Stop()
	h, _ := newTestHandler(adm)

	rec := doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ERR_RATE_LIMITED", body["error"])
	assert.NotNil(t, body["retryAfter"])
}

func TestGetSessionByID(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)

	rec = doRequest(h, http.MethodGet, "/api/v1/sessions/"+id, h.handleGetSessionByID, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body["id"])
	// Tokens are never readable back.
	assert.Nil(t, body["tokens"])

	rec = doRequest(h, http.MethodGet, "/api/v1/sessions/missing", h.handleGetSessionByID, "id", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchSessions(t *testing.T) {
	h, _ := newTestHandler(nil)

	doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)
	doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)

	rec := doRequest(h, http.MethodGet, "/api/v1/sessions", h.handleFetchSessions)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	members, ok := body["members"].([]interface{})
	require.True(t, ok)
	assert.Len(t, members, 2)
}

func TestTerminateSessionEndpoint(t *testing.T) {
	h, store := newTestHandler(nil)

	rec := doRequest(h, http.MethodPost, "/api/v1/sessions", h.handleCreateSession)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)

	rec = doRequest(h, http.MethodDelete, "/api/v1/sessions/"+id, h.handleTerminateSession, "id", id)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.Sessions().FindByID(id)
	assert.Equal(t, storage.ErrNotFound, err)

	rec = doRequest(h, http.MethodDelete, "/api/v1/sessions/"+id, h.handleTerminateSession, "id", id)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchDevicesEmpty(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doRequest(h, http.MethodGet, "/api/v1/devices", h.handleFetchDevices)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	members, ok := body["members"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, members)
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doRequest(h, http.MethodGet, "/api/v1/health", h.handleHealth)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "active_sessions")
	assert.Contains(t, body, "agent_connections")
	assert.Contains(t, body, "mobile_connections")
}
