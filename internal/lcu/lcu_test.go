package lcu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseLockfile(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Credentials
		wantErr bool
	}{
		{
			name: "valid",
			in:   "LeagueClient:1234:54321:s3cr3t:https\n",
			want: Credentials{Process: "LeagueClient", PID: 1234, Port: 54321, Password: "s3cr3t", Protocol: "https"},
		},
		{name: "too few fields", in: "LeagueClient:1234:54321", wantErr: true},
		{name: "bad port", in: "LeagueClient:1234:abc:pw:https", wantErr: true},
		{name: "port out of range", in: "LeagueClient:1234:70000:pw:https", wantErr: true},
		{name: "bad pid", in: "LeagueClient:x:54321:pw:https", wantErr: true},
		{name: "empty password", in: "LeagueClient:1:54321::https", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLockfile([]byte(tc.in))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiscover_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:1:2999:pw:https"), 0o600))

	creds, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, 2999, creds.Port)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNoLockfile)
}

func TestDecodeEvent(t *testing.T) {
	ev, ok, err := DecodeEvent([]byte(`[8,"OnJsonApiEvent_lol-gameflow_v1_gameflow-phase",{"data":"ChampSelect","eventType":"Update","uri":"/lol-gameflow/v1/gameflow-phase"}]`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TopicGameflowPhase, ev.Topic)
	assert.Equal(t, "Update", ev.EventType)
	assert.Equal(t, "/lol-gameflow/v1/gameflow-phase", ev.URI)
	assert.JSONEq(t, `"ChampSelect"`, string(ev.Data))

	_, ok, err = DecodeEvent([]byte(`[0,"session-id",1,"RiotClient"]`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = DecodeEvent([]byte(`[8]`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

type recordingHandler struct {
	mu     sync.Mutex
	calls  []string
	signal chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{signal: make(chan string, 32)}
}

func (h *recordingHandler) record(s string) {
	h.mu.Lock()
	h.calls = append(h.calls, s)
	h.mu.Unlock()
	h.signal <- s
}

func (h *recordingHandler) OnPhase(phase string) { h.record("phase:" + phase) }
func (h *recordingHandler) OnSession(raw json.RawMessage) { h.record("session:" + string(raw)) }
func (h *recordingHandler) OnLobby(raw json.RawMessage) { h.record("lobby:" + string(raw)) }
func (h *recordingHandler) OnConnected() { h.record("connected") }
func (h *recordingHandler) OnDisconnected(error) { h.record("disconnected") }

func (h *recordingHandler) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.calls...)
}

func TestDispatch(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want []string
	}{
		{
			name: "phase",
			ev:   Event{Topic: TopicGameflowPhase, Data: json.RawMessage(`"Lobby"`)},
			want: []string{"phase:Lobby"},
		},
		{
			name: "empty phase ignored",
			ev:   Event{Topic: TopicGameflowPhase, Data: json.RawMessage(`""`)},
		},
		{
			name: "session update",
			ev:   Event{Topic: TopicSession, EventType: "Update", Data: json.RawMessage(`{"gameId":1}`)},
			want: []string{`session:{"gameId":1}`},
		},
		{
			name: "session delete becomes null",
			ev:   Event{Topic: TopicSession, EventType: "Delete"},
			want: []string{"session:null"},
		},
		{
			name: "lobby",
			ev:   Event{Topic: TopicLobby, Data: json.RawMessage(`{"gameId":7}`)},
			want: []string{`lobby:{"gameId":7}`},
		},
		{
			name: "null lobby ignored",
			ev:   Event{Topic: TopicLobby, Data: json.RawMessage(`null`)},
		},
		{
			name: "unknown topic",
			ev:   Event{Topic: "OnJsonApiEvent_lol-chat_v1_me", Data: json.RawMessage(`{}`)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRecordingHandler()
			Dispatch(h, tc.ev)
			if len(tc.want) == 0 {
				assert.Empty(t, h.all())
				return
			}
			assert.Equal(t, tc.want, h.all())
		})
	}
}

func checkAuth(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	return ok && user == "riot" && pass == "pw"
}

func TestClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkAuth(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case pathGameflowPhase:
			fmt.Fprint(w, `"ChampSelect"`)
		case pathSession:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errorCode":"RPC_ERROR","message":"No active delegate"}`)
		case pathLobby:
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `boom`)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL, "pw", srv.Client())

	phase, err := c.GameflowPhase(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ChampSelect", phase)

	session, err := c.ChampSelectSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = c.Lobby(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)

	_, err = NewClient(srv.URL, "wrong", srv.Client()).GameflowPhase(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func fakeLeagueClient(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pathGameflowPhase, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"Lobby"`)
	})
	mux.HandleFunc(pathLobby, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"gameId":42}`)
	})
	mux.HandleFunc(pathSession, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"gameId":42,"actions":[]}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !checkAuth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"wamp"}})
		if err != nil {
			return
		}
		ctx := r.Context()
		for range Topics {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var sub []any
			if json.Unmarshal(data, &sub) != nil || len(sub) != 2 || sub[0] != float64(opSubscribe) {
				conn.Close(websocket.StatusPolicyViolation, "expected subscribe")
				return
			}
		}
		frame := `[8,"` + TopicSession + `",{"data":{"gameId":42},"eventType":"Update","uri":"/lol-champ-select/v1/session"}]`
		_ = conn.Write(ctx, websocket.MessageText, []byte(frame))
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConnector_SessionLifecycle(t *testing.T) {
	srv := fakeLeagueClient(t)
	h := newRecordingHandler()

	c := NewConnector(h, zaptest.NewLogger(t),
		WithCredentials(1, "pw"),
		WithReconnectBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }),
	)
	c.restURL = func(Credentials) string { return srv.URL }
	c.wsURL = func(Credentials) string { return "ws" + strings.TrimPrefix(srv.URL, "http") + "/" }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.Error(t, err)

	assert.Equal(t, []string{
		"connected",
		`lobby:{"gameId":42}`,
		"phase:Lobby",
		`session:{"gameId":42}`,
		"disconnected",
	}, h.all())
	assert.False(t, c.Connected())

	_, err = c.ChampSelectSession(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnector_RetriesUntilCancelled(t *testing.T) {
	h := newRecordingHandler()
	c := NewConnector(h, zaptest.NewLogger(t),
		WithLockfile(filepath.Join(t.TempDir(), "missing")),
		WithReconnectBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, c.Run(ctx))
	assert.Empty(t, h.all())
}
