// --- File: internal/executor/relay/relayexecutor_test.go ---
package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-client/pkg/bridge"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRelay is a scripted bridge server. The script runs once per inbound
// frame on the connection's read goroutine and may write replies or pushes
// back on the same connection.
type fakeRelay struct {
	server *httptest.Server
}

func startFakeRelay(t *testing.T, script func(conn *websocket.Conn, in frame)) *fakeRelay {
	t.Helper()
	upgrader := websocket.Upgrader{}
	r := &fakeRelay{}

	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, bridgePath, req.URL.Path)
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var in frame
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if script != nil {
				script(conn, in)
			}
		}
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) endpoint(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(r.server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func connectedExecutor(t *testing.T, relay *fakeRelay) *Executor {
	t.Helper()
	e := NewExecutor(newTestLogger())
	t.Cleanup(func() { _ = e.Close() })

	host, port := relay.endpoint(t)
	e.Execute(nil, nil, bridge.CommandInitialize, bridge.InitializePayload{
		ServerAddress: host,
		ServerPort:    port,
	})

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.conn != nil
	}, 2*time.Second, 10*time.Millisecond, "executor never connected")
	return e
}

func TestExecutor_RegisterRoundTrip(t *testing.T) {
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command != bridge.CommandRegister {
			return
		}
		token, _ := json.Marshal("token-xyz")
		_ = conn.WriteJSON(frame{ID: in.ID, Result: token})
	})

	e := connectedExecutor(t, relay)

	tokens := make(chan any, 1)
	e.Execute(
		func(result any) { tokens <- result },
		func(err error) { t.Errorf("unexpected failure: %v", err) },
		bridge.CommandRegister, nil)

	select {
	case result := <-tokens:
		assert.Equal(t, "token-xyz", result)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for register reply")
	}
}

func TestExecutor_FailureReplyForwarded(t *testing.T) {
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command == bridge.CommandRegister {
			_ = conn.WriteJSON(frame{ID: in.ID, Error: "network_error"})
		}
	})

	e := connectedExecutor(t, relay)

	failures := make(chan error, 1)
	e.Execute(
		func(any) { t.Error("unexpected success") },
		func(err error) { failures <- err },
		bridge.CommandRegister, nil)

	select {
	case err := <-failures:
		assert.EqualError(t, err, "network_error")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure")
	}
}

func TestExecutor_TypesPayloadOnTheWire(t *testing.T) {
	payloads := make(chan json.RawMessage, 1)
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command == bridge.CommandTypes {
			payloads <- in.Payload
			_ = conn.WriteJSON(frame{ID: in.ID})
		}
	})

	e := connectedExecutor(t, relay)

	done := make(chan struct{}, 1)
	e.Execute(
		func(any) { done <- struct{}{} },
		func(err error) { t.Errorf("unexpected failure: %v", err) },
		bridge.CommandTypes, bridge.TypesPayload{Bitmask: 5})

	select {
	case raw := <-payloads:
		var p bridge.TypesPayload
		require.NoError(t, json.Unmarshal(raw, &p))
		assert.Equal(t, uint8(5), p.Bitmask)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for types frame")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for types ack")
	}
}

func TestExecutor_NotificationsReachStandingListener(t *testing.T) {
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command != bridge.CommandListener {
			return
		}
		for _, msg := range []string{"first", "second"} {
			payload, _ := json.Marshal(map[string]any{"message": msg, "iconBadge": 1})
			_ = conn.WriteJSON(frame{Event: eventNotification, Payload: payload})
		}
	})

	e := connectedExecutor(t, relay)

	deliveries := make(chan any, 2)
	e.Execute(
		func(result any) { deliveries <- result },
		nil,
		bridge.CommandListener, nil)

	for _, want := range []string{"first", "second"} {
		select {
		case result := <-deliveries:
			fields, ok := result.(map[string]any)
			require.True(t, ok, "listener results are field maps")
			assert.Equal(t, want, fields["message"])
			assert.Equal(t, float64(1), fields["iconBadge"])
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestExecutor_CommandsQueuedWhileDialing(t *testing.T) {
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command == bridge.CommandRegister {
			token, _ := json.Marshal("token-queued")
			_ = conn.WriteJSON(frame{ID: in.ID, Result: token})
		}
	})

	e := NewExecutor(newTestLogger())
	t.Cleanup(func() { _ = e.Close() })

	host, port := relay.endpoint(t)
	e.Execute(nil, nil, bridge.CommandInitialize, bridge.InitializePayload{
		ServerAddress: host,
		ServerPort:    port,
	})

	// Issued immediately after initialize, without waiting for the dial.
	tokens := make(chan any, 1)
	e.Execute(
		func(result any) { tokens <- result },
		func(err error) { t.Errorf("unexpected failure: %v", err) },
		bridge.CommandRegister, nil)

	select {
	case result := <-tokens:
		assert.Equal(t, "token-queued", result)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued register reply")
	}
}

func TestExecutor_CloseFailsQueuedCommands(t *testing.T) {
	e := NewExecutor(newTestLogger())

	// Nothing is listening on this port, so the dial keeps retrying.
	e.Execute(nil, nil, bridge.CommandInitialize, bridge.InitializePayload{
		ServerAddress: "127.0.0.1",
		ServerPort:    1,
	})

	failures := make(chan error, 1)
	e.Execute(
		func(any) { t.Error("unexpected success") },
		func(err error) { failures <- err },
		bridge.CommandRegister, nil)

	require.NoError(t, e.Close())

	select {
	case err := <-failures:
		assert.ErrorContains(t, err, "executor closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close failure")
	}
}

func TestExecutor_OneShotBeforeInitializeFails(t *testing.T) {
	e := NewExecutor(newTestLogger())
	t.Cleanup(func() { _ = e.Close() })

	failures := make(chan error, 1)
	e.Execute(
		func(any) { t.Error("unexpected success") },
		func(err error) { failures <- err },
		bridge.CommandRegister, nil)

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for not-connected failure")
	}
}

func TestExecutor_ListenerSurvivesReconnect(t *testing.T) {
	// The first subscription gets one push and then loses the connection;
	// the second push arrives only if the executor re-sends the listener
	// frame on the new connection.
	var subscriptions atomic.Int32
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command != bridge.CommandListener {
			return
		}
		if subscriptions.Add(1) == 1 {
			payload, _ := json.Marshal(map[string]any{"message": "before-drop"})
			_ = conn.WriteJSON(frame{Event: eventNotification, Payload: payload})
			_ = conn.Close()
			return
		}
		payload, _ := json.Marshal(map[string]any{"message": "after-drop"})
		_ = conn.WriteJSON(frame{Event: eventNotification, Payload: payload})
	})

	e := connectedExecutor(t, relay)

	deliveries := make(chan any, 2)
	e.Execute(
		func(result any) { deliveries <- result },
		nil,
		bridge.CommandListener, nil)

	for _, want := range []string{"before-drop", "after-drop"} {
		select {
		case result := <-deliveries:
			fields, ok := result.(map[string]any)
			require.True(t, ok, "listener results are field maps")
			assert.Equal(t, want, fields["message"])
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	assert.Equal(t, int32(2), subscriptions.Load())
}

func TestExecutor_ClosedExecutorDeclinesLateDial(t *testing.T) {
	relay := startFakeRelay(t, nil)
	host, port := relay.endpoint(t)
	endpoint := fmt.Sprintf("ws://%s:%d%s", host, port, bridgePath)

	e := NewExecutor(newTestLogger())
	e.mu.Lock()
	e.endpoint = endpoint
	e.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)

	require.NoError(t, e.Close())

	require.False(t, e.adoptConn(conn, endpoint))
	e.mu.Lock()
	assert.Nil(t, e.conn)
	e.mu.Unlock()
	assert.Error(t, conn.WriteJSON(frame{Command: bridge.CommandRegister}))
}

func TestExecutor_PendingCallsFailOnConnectionLoss(t *testing.T) {
	relay := startFakeRelay(t, func(conn *websocket.Conn, in frame) {
		if in.Command == bridge.CommandRegister {
			// Drop the connection instead of answering.
			_ = conn.Close()
		}
	})

	e := connectedExecutor(t, relay)

	failures := make(chan error, 1)
	e.Execute(
		func(any) { t.Error("unexpected success") },
		func(err error) { failures <- err },
		bridge.CommandRegister, nil)

	select {
	case err := <-failures:
		assert.ErrorContains(t, err, "connection lost")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection-loss failure")
	}
}
