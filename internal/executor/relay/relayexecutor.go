// --- File: internal/executor/relay/relayexecutor.go ---
// Package relay implements the bridge executor over a websocket connection
// to a push relay server.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinywideclouds/go-push-client/pkg/bridge"
)

// ErrNotConnected is reported for one-shot commands issued before
// CommandInitialize, or queued behind a dial that was abandoned.
var ErrNotConnected = errors.New("relay: not connected")

const bridgePath = "/v1/bridge"

// frame is the wire format in both directions. Outbound frames carry
// id/command/payload; inbound frames are either replies (id + result/error)
// or pushes (event + payload).
type frame struct {
	ID      string          `json:"id,omitempty"`
	Command bridge.Command  `json:"command,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const eventNotification = "notification"

type pendingCall struct {
	onSuccess func(result any)
	onFailure func(err error)
}

// outboundCommand is a one-shot frame queued while a dial is in flight.
type outboundCommand struct {
	out       frame
	onSuccess func(result any)
	onFailure func(err error)
}

// Executor speaks the relay protocol. It satisfies bridge.Executor.
//
// CommandInitialize is handled locally: it (re)dials the relay at the given
// endpoint. One-shot commands are correlated by ID and resolved by the read
// loop; commands issued while a dial is in flight queue up and flush once it
// lands. The standing listener subscription survives reconnects.
type Executor struct {
	logger *slog.Logger
	dialer *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	endpoint    string
	dialing     bool
	queue       []outboundCommand
	pending     map[string]pendingCall
	onNotify    func(result any)
	onNotifyErr func(err error)
	closed      bool
}

// NewExecutor creates an unconnected executor. The connection is established
// when the client issues CommandInitialize.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		logger:  logger.With("component", "RelayExecutor"),
		dialer:  websocket.DefaultDialer,
		pending: make(map[string]pendingCall),
	}
}

// Execute implements bridge.Executor.
func (e *Executor) Execute(onSuccess func(result any), onFailure func(err error), command bridge.Command, payload any) {
	switch command {
	case bridge.CommandInitialize:
		e.initialize(payload)
		return
	case bridge.CommandListener:
		e.installListener(onSuccess, onFailure)
		return
	}

	out := frame{Command: command}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.dispatchFailure(onFailure, fmt.Errorf("relay: encode %s payload: %w", command, err))
			return
		}
		out.Payload = raw
	}

	e.mu.Lock()
	if e.conn == nil {
		if e.dialing && !e.closed {
			// Hold the command until the in-flight dial lands.
			e.queue = append(e.queue, outboundCommand{out: out, onSuccess: onSuccess, onFailure: onFailure})
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
		e.dispatchFailure(onFailure, ErrNotConnected)
		return
	}
	err := e.writeLocked(outboundCommand{out: out, onSuccess: onSuccess, onFailure: onFailure})
	e.mu.Unlock()

	if err != nil {
		e.dispatchFailure(onFailure, fmt.Errorf("relay: write %s: %w", command, err))
	}
}

// writeLocked sends a one-shot frame on the current connection, registering
// the callbacks under a fresh correlation ID. e.mu must be held.
func (e *Executor) writeLocked(cmd outboundCommand) error {
	if cmd.onSuccess != nil || cmd.onFailure != nil {
		cmd.out.ID = uuid.NewString()
		e.pending[cmd.out.ID] = pendingCall{onSuccess: cmd.onSuccess, onFailure: cmd.onFailure}
	}
	err := e.conn.WriteJSON(cmd.out)
	if err != nil && cmd.out.ID != "" {
		delete(e.pending, cmd.out.ID)
	}
	return err
}

// Close tears down the connection and fails all in-flight and queued calls.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	conn := e.conn
	e.conn = nil
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()

	closeErr := errors.New("relay: executor closed")
	e.failPending(closeErr)
	for _, cmd := range queued {
		e.dispatchFailure(cmd.onFailure, closeErr)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// initialize dials the relay named in the payload. Fire-and-forget per the
// bridge contract: dial failures are retried with exponential backoff and
// surface only in the log.
func (e *Executor) initialize(payload any) {
	p, ok := payload.(bridge.InitializePayload)
	if !ok {
		e.logger.Error("initialize called with unexpected payload type", "payload", fmt.Sprintf("%T", payload))
		return
	}
	endpoint := fmt.Sprintf("ws://%s:%d%s", p.ServerAddress, p.ServerPort, bridgePath)

	e.mu.Lock()
	e.endpoint = endpoint
	old := e.conn
	e.conn = nil
	e.dialing = true
	e.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go e.connect(endpoint)
}

// connect dials until it succeeds or the executor is closed, then hands the
// connection to the read loop.
func (e *Executor) connect(endpoint string) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		e.mu.Lock()
		closed := e.closed
		stale := e.endpoint != endpoint
		e.mu.Unlock()
		if closed || stale {
			return backoff.Permanent(errors.New("relay: connect abandoned"))
		}

		c, _, err := e.dialer.Dial(endpoint, nil)
		if err != nil {
			e.logger.Warn("relay dial failed, retrying", "endpoint", endpoint, "err", err)
			return err
		}
		conn = c
		return nil
	}, policy)
	if err != nil {
		e.logger.Error("relay connection could not be established", "endpoint", endpoint, "err", err)
		e.abandonDial(endpoint, err)
		return
	}

	e.adoptConn(conn, endpoint)
}

// adoptConn installs a freshly dialed connection, re-arms the standing
// subscription, and flushes queued commands. It declines the connection when
// Close or a newer initialize raced the final dial.
func (e *Executor) adoptConn(conn *websocket.Conn, endpoint string) bool {
	e.mu.Lock()
	if e.closed || e.endpoint != endpoint {
		e.mu.Unlock()
		_ = conn.Close()
		return false
	}
	e.conn = conn
	e.dialing = false
	flush := e.queue
	e.queue = nil
	hasListener := e.onNotify != nil
	e.mu.Unlock()

	e.logger.Info("relay connected", "endpoint", endpoint)

	if hasListener {
		e.sendListenerFrame()
	}
	e.flushQueued(conn, flush)
	go e.readLoop(conn, endpoint)
	return true
}

// abandonDial fails the commands queued behind a dial that gave up. A dial
// for a newer endpoint keeps the queue; its own connect flushes it.
func (e *Executor) abandonDial(endpoint string, cause error) {
	e.mu.Lock()
	if e.endpoint != endpoint {
		e.mu.Unlock()
		return
	}
	e.dialing = false
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, cmd := range queued {
		e.dispatchFailure(cmd.onFailure, fmt.Errorf("%w: %v", ErrNotConnected, cause))
	}
}

func (e *Executor) flushQueued(conn *websocket.Conn, flush []outboundCommand) {
	for _, cmd := range flush {
		e.mu.Lock()
		if e.conn != conn {
			e.mu.Unlock()
			e.dispatchFailure(cmd.onFailure, ErrNotConnected)
			continue
		}
		err := e.writeLocked(cmd)
		e.mu.Unlock()
		if err != nil {
			e.dispatchFailure(cmd.onFailure, fmt.Errorf("relay: write %s: %w", cmd.out.Command, err))
		}
	}
}

// installListener records the standing callbacks and arms the subscription.
// A second installation replaces the first.
func (e *Executor) installListener(onSuccess func(result any), onFailure func(err error)) {
	e.mu.Lock()
	e.onNotify = onSuccess
	e.onNotifyErr = onFailure
	connected := e.conn != nil
	e.mu.Unlock()

	if connected {
		e.sendListenerFrame()
	}
}

func (e *Executor) sendListenerFrame() {
	e.mu.Lock()
	var err error
	if e.conn != nil {
		err = e.conn.WriteJSON(frame{Command: bridge.CommandListener})
	}
	e.mu.Unlock()
	if err != nil {
		e.logger.Warn("failed to arm notification subscription", "err", err)
	}
}

// readLoop resolves replies and dispatches pushes until the connection dies,
// then fails in-flight calls and reconnects.
func (e *Executor) readLoop(conn *websocket.Conn, endpoint string) {
	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("relay connection lost", "err", err)
			}
			break
		}

		switch {
		case in.Event == eventNotification:
			e.dispatchNotification(in.Payload)
		case in.ID != "":
			e.resolve(in)
		default:
			e.logger.Debug("ignoring unroutable relay frame")
		}
	}

	_ = conn.Close()
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	closed := e.closed
	stale := e.endpoint != endpoint
	if !closed && !stale {
		// Keep one-shots queueing while the reconnect dial runs.
		e.dialing = true
	}
	e.mu.Unlock()

	e.failPending(errors.New("relay: connection lost"))
	if !closed && !stale {
		e.mu.Lock()
		onNotifyErr := e.onNotifyErr
		e.mu.Unlock()
		if onNotifyErr != nil {
			onNotifyErr(errors.New("relay: connection lost, resubscribing"))
		}
		go e.connect(endpoint)
	}
}

func (e *Executor) dispatchNotification(payload json.RawMessage) {
	e.mu.Lock()
	onNotify := e.onNotify
	e.mu.Unlock()
	if onNotify == nil {
		return
	}

	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			e.logger.Warn("malformed notification payload", "err", err)
			return
		}
	}
	onNotify(fields)
}

func (e *Executor) resolve(in frame) {
	e.mu.Lock()
	call, ok := e.pending[in.ID]
	delete(e.pending, in.ID)
	e.mu.Unlock()
	if !ok {
		e.logger.Debug("reply for unknown call", "id", in.ID)
		return
	}

	if in.Error != "" {
		if call.onFailure != nil {
			call.onFailure(errors.New(in.Error))
		}
		return
	}
	if call.onSuccess == nil {
		return
	}
	var result any
	if len(in.Result) > 0 {
		if err := json.Unmarshal(in.Result, &result); err != nil {
			if call.onFailure != nil {
				call.onFailure(fmt.Errorf("relay: decode result: %w", err))
			}
			return
		}
	}
	call.onSuccess(result)
}

func (e *Executor) failPending(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]pendingCall)
	e.mu.Unlock()

	for _, call := range pending {
		if call.onFailure != nil {
			call.onFailure(err)
		}
	}
}

// dispatchFailure reports a local failure asynchronously so Execute keeps its
// return-immediately contract even on the error path.
func (e *Executor) dispatchFailure(onFailure func(err error), err error) {
	if onFailure == nil {
		e.logger.Warn("command failed with no failure callback", "err", err)
		return
	}
	go onFailure(err)
}
