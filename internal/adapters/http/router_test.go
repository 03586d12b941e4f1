package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	sess *domain.RealtimeSession
	err  error
}

func (p *fakeProvisioner) Provision(context.Context) (*domain.RealtimeSession, error) {
	return p.sess, p.err
}

type deniedCapturer struct{}

func (deniedCapturer) Open(context.Context, domain.AudioConstraints) (core.AudioCapture, error) {
	return nil, errors.New("permission denied")
}

func newTestServer(t *testing.T, prov *fakeProvisioner, connectPerMinute int) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		Mode:       "release",
		Secret:     "test-secret",
		PingPeriod: time.Minute,
		Limits:     config.Limits{ConnectPerMinute: connectPerMinute},
	}
	reg := app.NewRegistry(func(app.ClientID) *session.Manager {
		return session.NewManager(session.Deps{Capturer: deniedCapturer{}}, session.Options{})
	})
	srv := httptest.NewServer(SetupRouter(ctx, cfg, Deps{Registry: reg, Provisioner: prov}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		reg.Shutdown()
	})
	return srv
}

func TestTokenEndpoint(t *testing.T) {
	raw := `{"id":"sess_1","client_secret":{"value":"ek_1","expires_at":1700000000},"modalities":["audio"]}`
	srv := newTestServer(t, &fakeProvisioner{sess: &domain.RealtimeSession{Raw: json.RawMessage(raw)}}, 0)

	resp, err := http.Get(srv.URL + "/api/realtime/token")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sess_1", body["id"])
	assert.Equal(t, []any{"audio"}, body["modalities"])

	var ct *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "ct" {
			ct = c
		}
	}
	require.NotNil(t, ct, "client token cookie issued")
	assert.NotEmpty(t, ct.Value)
}

func TestTokenEndpointUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{err: errors.New("status 500")}, 0)

	resp, err := http.Get(srv.URL + "/api/realtime/token")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Failed to create session", body["error"])
}

func refresh(t *testing.T, client *http.Client, url, auth string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/realtime/token/refresh", nil)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRefreshRequiresBearer(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{}, 0)

	for _, auth := range []string{"", "Basic abc", "Bearer "} {
		code, body := refresh(t, http.DefaultClient, srv.URL, auth)
		assert.Equal(t, http.StatusUnauthorized, code, auth)
		assert.Equal(t, "INVALID_AUTH", body["code"], auth)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{}, 0)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	code, body := refresh(t, client, srv.URL, "Bearer first")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body["token"].(string), "rt_"))
	assert.EqualValues(t, 3600, body["expiresIn"])
	next := body["refreshToken"].(string)
	assert.True(t, strings.HasPrefix(next, "rrt_"))

	code, body = refresh(t, client, srv.URL, "Bearer first")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_AUTH", body["code"])

	code, body = refresh(t, client, srv.URL, "Bearer "+next)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, next, body["refreshToken"])
}

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestSessionSocketCommands(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{}, 0)
	conn := dialSession(t, srv)

	ev := readEvent(t, conn)
	assert.Equal(t, "state", ev["type"])
	assert.Equal(t, "uninitialized", ev["state"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio", "enabled": false}))
	ev = readEvent(t, conn)
	assert.Equal(t, "audio", ev["type"])
	assert.Equal(t, false, ev["enabled"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send", "message": map[string]string{"type": "response.create"}}))
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "not_connected", ev["kind"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus"}))
	assert.Equal(t, "unknown_type", readEvent(t, conn)["kind"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "disconnect"}))
	ev = readEvent(t, conn)
	assert.Equal(t, "disconnected", ev["state"])
}

func TestSessionSocketConnectFailure(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{}, 0)
	conn := dialSession(t, srv)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "connect"}))

	ev := readEvent(t, conn)
	assert.Equal(t, "initializing", ev["state"])
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "media_access", ev["kind"])
	ev = readEvent(t, conn)
	assert.Equal(t, "disconnected", ev["state"])
}

func TestSessionSocketConnectRateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeProvisioner{}, 1)
	conn := dialSession(t, srv)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "connect"}))
	for i := 0; i < 3; i++ {
		readEvent(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "connect"}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "rate_limited", ev["kind"])
}
