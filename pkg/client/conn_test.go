package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-live/backend/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades connections and answers init-session with
// session-ready. It counts upgrade requests and can be told to reject them.
type echoServer struct {
	srv       *httptest.Server
	dials     int64
	rejecting int32
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&es.dials, 1)
		if atomic.LoadInt32(&es.rejecting) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(frame)
			if err != nil {
				continue
			}
			if env.Type == protocol.EventInitSession {
				reply := Envelope{
					Type:      EventSessionReady,
					SessionID: "abc",
					Mode:      env.Mode,
				}
				data, _ := reply.Encode()
				conn.WriteMessage(websocket.TextMessage, data)
			}
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *echoServer) dialCount() int64 {
	return atomic.LoadInt64(&es.dials)
}

func waitForEvent(t *testing.T, ch <-chan *Envelope, timeout time.Duration) *Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	conn := NewConn("ws://127.0.0.1:1", nil, DefaultOptions(), nil)

	err := conn.SendText("hello")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestInitSessionRoundTrip(t *testing.T) {
	es := newEchoServer(t)

	d := NewDispatcher(nil)
	ready := make(chan *Envelope, 1)
	d.On(EventSessionReady, func(env *Envelope) { ready <- env })

	conn := NewConn(es.wsURL(), d, DefaultOptions(), nil)
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.InitSession("", ModeInterview, ModeConfig{Role: "Backend Engineer"}))

	env := waitForEvent(t, ready, 2*time.Second)
	assert.Equal(t, "abc", env.SessionID)
	assert.Equal(t, ModeInterview, env.Mode)
}

func TestConnectIdempotent(t *testing.T) {
	es := newEchoServer(t)

	conn := NewConn(es.wsURL(), nil, DefaultOptions(), nil)
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))

	assert.Equal(t, StateConnected, conn.State())
	assert.EqualValues(t, 1, es.dialCount(), "repeated Connect must not dial again")
}

func TestClientIdentityStable(t *testing.T) {
	conn := NewConn("ws://127.0.0.1:1", nil, DefaultOptions(), nil)

	id := conn.ClientID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, conn.ClientID())
}

func TestReconnectExhaustion(t *testing.T) {
	es := newEchoServer(t)

	d := NewDispatcher(nil)
	disconnected := make(chan *Envelope, 1)
	failed := make(chan *Envelope, 1)
	d.On(EventDisconnected, func(env *Envelope) { disconnected <- env })
	d.On(EventReconnectFailed, func(env *Envelope) { failed <- env })

	opts := DefaultOptions()
	opts.ReconnectDelay = 10 * time.Millisecond
	conn := NewConn(es.wsURL(), d, opts, nil)
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background()))
	dialsBefore := es.dialCount()

	// Reject all further dials and kill the live socket
	atomic.StoreInt32(&es.rejecting, 1)
	es.srv.CloseClientConnections()

	waitForEvent(t, disconnected, 2*time.Second)
	waitForEvent(t, failed, 5*time.Second)

	attempts := es.dialCount() - dialsBefore
	assert.EqualValues(t, 5, attempts, "expected exactly 5 reconnect attempts")

	// No further attempts after the terminal event
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 5, es.dialCount()-dialsBefore)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestReconnectKeepsIdentity(t *testing.T) {
	var gotIDs []string
	seen := make(chan struct{}, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		gotIDs = append(gotIDs, parts[len(parts)-1])
		seen <- struct{}{}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the first connection immediately to force a reconnect
		if len(gotIDs) == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := NewDispatcher(nil)
	reconnected := make(chan *Envelope, 2)
	d.On(EventConnected, func(env *Envelope) { reconnected <- env })

	opts := DefaultOptions()
	opts.ReconnectDelay = 10 * time.Millisecond
	conn := NewConn("ws"+strings.TrimPrefix(srv.URL, "http"), d, opts, nil)
	defer conn.Close()

	require.NoError(t, conn.Connect(context.Background()))
	waitForEvent(t, reconnected, 2*time.Second)

	// Second connect event comes from the automatic reconnect
	waitForEvent(t, reconnected, 2*time.Second)

	<-seen
	<-seen
	require.Len(t, gotIDs, 2)
	assert.Equal(t, gotIDs[0], gotIDs[1], "reconnect must reuse the client identity")
	assert.Equal(t, conn.ClientID(), gotIDs[0])
}

func TestCloseSuppressesReconnect(t *testing.T) {
	es := newEchoServer(t)

	d := NewDispatcher(nil)
	disconnected := make(chan *Envelope, 1)
	d.On(EventDisconnected, func(env *Envelope) { disconnected <- env })

	opts := DefaultOptions()
	opts.ReconnectDelay = 10 * time.Millisecond
	conn := NewConn(es.wsURL(), d, opts, nil)

	require.NoError(t, conn.Connect(context.Background()))
	dialsBefore := es.dialCount()

	require.NoError(t, conn.Close())

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, es.dialCount()-dialsBefore, "Close must not trigger reconnection")
	assert.Equal(t, StateDisconnected, conn.State())

	// Connect after Close is refused
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrClosed)

	select {
	case <-disconnected:
		t.Error("caller-initiated close must not emit a disconnect event")
	default:
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"mode":"chat"}`))
		thinking, _ := (&Envelope{Type: EventAIThinking}).Encode()
		conn.WriteMessage(websocket.TextMessage, thinking)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := NewDispatcher(nil)
	events := make(chan *Envelope, 10)
	for _, et := range []EventType{EventSessionReady, EventAIResponse, EventAIThinking, EventError} {
		d.On(et, func(env *Envelope) { events <- env })
	}

	conn := NewConn("ws"+strings.TrimPrefix(srv.URL, "http"), d, DefaultOptions(), nil)
	defer conn.Close()
	require.NoError(t, conn.Connect(context.Background()))

	env := waitForEvent(t, events, 2*time.Second)
	assert.Equal(t, EventAIThinking, env.Type, "only the well-formed typed frame may dispatch")

	select {
	case extra := <-events:
		t.Errorf("unexpected extra event dispatched: %v", extra.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
