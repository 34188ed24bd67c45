// ABOUTME: Tests for the gateway HTTP client
// ABOUTME: Covers tickle classification, transport failure folding, and session operations

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/status"
)

const fullTickleBody = `{
	"session": "a1b2c3",
	"ssoExpires": 120000,
	"collission": false,
	"iserver": {
		"authStatus": {
			"authenticated": true,
			"competing": false,
			"connected": true,
			"serverInfo": {"serverName": "gw-prod-7", "serverVersion": "Build 10.25"}
		}
	}
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := config.Default().Gateway
	cfg.BaseURL = baseURL
	cfg.RequestTimeout = 2 * time.Second
	cfg.RequestRetries = 0

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)
	return client
}

// testWriter routes client logs through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestStatus_Authenticated(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/api/tickle", r.URL.Path)
		w.Write([]byte(fullTickleBody))
	}))
	defer srv.Close()

	st := newTestClient(t, srv.URL).Status(context.Background())

	assert.Equal(t, status.Authenticated, st.Classify())
	assert.True(t, st.Running)
	assert.True(t, st.Session)
	assert.True(t, st.Connected)
	assert.Equal(t, "a1b2c3", st.SessionID)
	assert.Equal(t, int64(120000), st.Expires)
	assert.Equal(t, "gw-prod-7", st.ServerName)
	assert.Equal(t, "Build 10.25", st.ServerVersion)
}

func TestStatus_NoSessionSentinel(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no session"}`))
	}))
	defer srv.Close()

	st := newTestClient(t, srv.URL).Status(context.Background())

	assert.Equal(t, status.NoSession, st.Classify())
	assert.True(t, st.Running)
	assert.False(t, st.Session)
}

func TestStatus_Unauthorized(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := newTestClient(t, srv.URL).Status(context.Background())

	assert.Equal(t, status.NoSession, st.Classify())
	assert.True(t, st.Running)
}

func TestStatus_ServerError(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable} {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", code)
		}))

		st := newTestClient(t, srv.URL).Status(context.Background())
		srv.Close()

		assert.Equal(t, status.NoSession, st.Classify(), "status code %d", code)
		assert.True(t, st.Running, "status code %d", code)
	}
}

func TestStatus_GatewayDown(t *testing.T) {
	// Closed server: connection refused means the process is not running.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	st := newTestClient(t, url).Status(context.Background())

	assert.Equal(t, status.NotRunning, st.Classify())
	assert.False(t, st.Running)
}

func TestStatus_UnresolvableHost(t *testing.T) {
	st := newTestClient(t, "https://no-such-host.invalid:5000").Status(context.Background())

	// A name resolution failure does not prove the process is down, so the
	// gateway stays classified as running and the session loop keeps going.
	assert.Equal(t, status.NoSession, st.Classify())
	assert.True(t, st.Running)
}

func TestStatus_Timeout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	cfg := config.Default().Gateway
	cfg.BaseURL = srv.URL
	cfg.RequestTimeout = 100 * time.Millisecond
	cfg.RequestRetries = 0

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)

	st := client.Status(context.Background())

	// A hung API means the process exists but holds no usable session.
	assert.Equal(t, status.NoSession, st.Classify())
	assert.True(t, st.Running)
}

func TestStatus_MalformedBody(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	st := newTestClient(t, srv.URL).Status(context.Background())

	assert.Equal(t, status.NoSession, st.Classify())
	assert.True(t, st.Running)
}

func TestStatus_RetriesServerError(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(fullTickleBody))
	}))
	defer srv.Close()

	cfg := config.Default().Gateway
	cfg.BaseURL = srv.URL
	cfg.RequestTimeout = 2 * time.Second
	cfg.RequestRetries = 1

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)

	st := client.Status(context.Background())

	assert.Equal(t, 2, calls)
	assert.Equal(t, status.Authenticated, st.Classify())
}

func TestStatus_NoRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Default().Gateway
	cfg.BaseURL = srv.URL
	cfg.RequestTimeout = 2 * time.Second
	cfg.RequestRetries = 3

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)

	st := client.Status(context.Background())

	assert.Equal(t, 1, calls)
	assert.Equal(t, status.NoSession, st.Classify())
}

func TestValidate(t *testing.T) {
	t.Run("valid session", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/portal/sso/validate", r.URL.Path)
			w.Write([]byte(`{"RESULT":true}`))
		}))
		defer srv.Close()

		ok, err := newTestClient(t, srv.URL).Validate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid session", func(t *testing.T) {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		ok, err := newTestClient(t, srv.URL).Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLogout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/api/logout", r.URL.Path)
		w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	ok, err := newTestClient(t, srv.URL).Logout(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReauthenticate(t *testing.T) {
	var gotQuery string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/v1/portal/iserver/reauthenticate", r.URL.Path)
		w.Write([]byte(`{"message":"triggered"}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Reauthenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "force=true", gotQuery)
}

func TestInitialise(t *testing.T) {
	var gotMethod string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		assert.Equal(t, "/v1/api/iserver/auth/ssodh/init", r.URL.Path)
		w.Write([]byte(`{"authenticated":false}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Initialise(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestLoginURL(t *testing.T) {
	cfg := config.Default().Gateway
	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	require.NoError(t, err)

	assert.Equal(t, "https://localhost:5000/sso/Login?forwardTo=22&RL=1&ip2loc=on", client.LoginURL())
}
