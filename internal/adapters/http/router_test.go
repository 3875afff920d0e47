package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkeep/voicelink/internal/bridge"
	"github.com/barkeep/voicelink/internal/config"
	"github.com/barkeep/voicelink/internal/domain"
	"github.com/barkeep/voicelink/internal/session"
)

// blockingCreds parks Mint until the gate closes so the controller stays in
// a transitioning state for as long as the test needs.
type blockingCreds struct {
	gate chan struct{}
}

func (b *blockingCreds) Mint(ctx context.Context, voice string) (domain.Credential, error) {
	select {
	case <-b.gate:
		return domain.Credential{}, errors.New("shutting down")
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	}
}

func testRouter(t *testing.T) (*gin.Engine, *blockingCreds) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	creds := &blockingCreds{gate: make(chan struct{})}
	ctrl := session.NewController(
		session.Config{Voice: "alloy"},
		session.Deps{Credentials: creds},
		session.Callbacks{},
	)
	t.Cleanup(func() {
		close(creds.gate)
		ctrl.Stop()
	})
	relay := bridge.NewRelay(creds, "ws://127.0.0.1:1/nope", "alloy")
	cfg := &config.Config{Mode: "test", Port: 0}
	return SetupRouter(context.Background(), cfg, ctrl, relay), creds
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusIdle(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
	assert.Contains(t, w.Body.String(), `"active":false`)
}

func TestStartThenBusyThenStop(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodPost, "/api/session/start", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, r, http.MethodPost, "/api/session/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/session/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestSendEventWithoutSession(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodPost, "/api/session/event", `{"type":"response.create"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendEventRejectsBadPayload(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodPost, "/api/session/event", `{nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientTokenCookieIsSet(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodGet, "/api/status", "")
	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "client token cookie must be issued")
}
