package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkeep/voicelink/internal/core"
)

func TestMint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "marin", body["voice"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"client_secret":{"value":"ek_test_123"}}`))
	}))
	defer srv.Close()

	cred, err := NewClient(srv.URL, time.Second).Mint(context.Background(), "marin")
	require.NoError(t, err)
	assert.Equal(t, "ek_test_123", cred.Value)
}

func TestMintNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Mint(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, core.FaultAuth, core.KindOf(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestMintMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client_secret":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Mint(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, core.FaultAuth, core.KindOf(err))
}

func TestMintMissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client_secret":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Mint(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, core.FaultAuth, core.KindOf(err))
}

func TestMintNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := NewClient(srv.URL, time.Second).Mint(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, core.FaultAuth, core.KindOf(err))
}

func TestMintCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, time.Second).Mint(ctx, "")
	require.Error(t, err)
}
