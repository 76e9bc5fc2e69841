package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/mystuff/common/config"
	"github.com/guarzo/mystuff/modules/mystuff"
)

func newBackend(t *testing.T, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "stored-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","id_token":"fresh-id","expires_in":3600}`)
	})
	mux.HandleFunc(mystuff.ItemsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":7,"name":"Lamp","amount":2,"lastUsed":"2024-05-01T10:00:00","location":"attic"},`+
			`{"id":8,"name":"Tent","amount":1,"lastUsed":null,"location":"garage"}]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeConfig(t *testing.T, serverURL string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)

	yml := fmt.Sprintf(`backend:
  host: %s
  protocol: http
  port: %s
auth:
  identity_provider: telekom
  refresh_timeout: 2s
  token_url: %s/token
  client_id: mystuff-app
  refresh_token: stored-refresh
log:
  level: error
`, u.Hostname(), u.Port(), serverURL)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	return path
}

func TestRun_ListsItemsAfterRefresh(t *testing.T) {
	var tokenCalls atomic.Int32
	ts := newBackend(t, &tokenCalls)

	cfg, err := config.Load(writeConfig(t, ts.URL), "")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))

	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Contains(t, out.String(), "Lamp")
	assert.Contains(t, out.String(), "2024-05-01")
	assert.Contains(t, out.String(), "Tent")
	assert.Contains(t, out.String(), "never")
}

func TestRun_FailsWhenBackendKeepsRejecting(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid refresh_token"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	cfg, err := config.Load(writeConfig(t, ts.URL), "")
	require.NoError(t, err)

	var out bytes.Buffer
	err = run(context.Background(), cfg, &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}
