// --- File: internal/executor/nats/natsexecutor.go ---
// Package nats implements the bridge executor over NATS request/reply.
package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"github.com/tinywideclouds/go-push-client/pkg/bridge"
)

// DefaultRequestTimeout bounds one-shot command round trips.
const DefaultRequestTimeout = 5 * time.Second

// conn is the subset of *nats.Conn the executor uses, kept narrow so unit
// tests can substitute a fake.
type conn interface {
	Publish(subject string, data []byte) error
	Request(subject string, data []byte, timeout time.Duration) (*natspkg.Msg, error)
	Subscribe(subject string, handler natspkg.MsgHandler) (*natspkg.Subscription, error)
}

// reply is the envelope the bridge service answers one-shot requests with.
type reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Executor maps bridge commands onto NATS subjects: one-shots are
// request/reply on "<prefix>.cmd.<command>", fire-and-forget commands are
// plain publishes, and the standing listener is a subscription on
// "<prefix>.notify". It satisfies bridge.Executor.
type Executor struct {
	nc      conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	notifSub *natspkg.Subscription
}

// NewExecutor connects to the given NATS URL.
func NewExecutor(url, subjectPrefix string, logger *slog.Logger) (*Executor, error) {
	nc, err := natspkg.Connect(url,
		natspkg.RetryOnFailedConnect(true),
		natspkg.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newExecutor(nc, subjectPrefix, logger), nil
}

func newExecutor(nc conn, subjectPrefix string, logger *slog.Logger) *Executor {
	return &Executor{
		nc:      nc,
		prefix:  subjectPrefix,
		timeout: DefaultRequestTimeout,
		logger:  logger.With("component", "NATSExecutor"),
	}
}

// Execute implements bridge.Executor.
func (e *Executor) Execute(onSuccess func(result any), onFailure func(err error), command bridge.Command, payload any) {
	if command == bridge.CommandListener {
		e.subscribe(onSuccess, onFailure)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.fail(onFailure, fmt.Errorf("nats: encode %s payload: %w", command, err))
		return
	}
	subject := fmt.Sprintf("%s.cmd.%s", e.prefix, command)

	// Fire-and-forget commands need no reply plumbing.
	if onSuccess == nil && onFailure == nil {
		if err := e.nc.Publish(subject, data); err != nil {
			e.logger.Warn("publish failed", "subject", subject, "err", err)
		}
		return
	}

	go func() {
		msg, err := e.nc.Request(subject, data, e.timeout)
		if err != nil {
			e.fail(onFailure, fmt.Errorf("nats: %s request: %w", command, err))
			return
		}

		var rep reply
		if err := json.Unmarshal(msg.Data, &rep); err != nil {
			e.fail(onFailure, fmt.Errorf("nats: decode %s reply: %w", command, err))
			return
		}
		if rep.Error != "" {
			e.fail(onFailure, errors.New(rep.Error))
			return
		}
		if onSuccess == nil {
			return
		}
		var result any
		if len(rep.Result) > 0 {
			if err := json.Unmarshal(rep.Result, &result); err != nil {
				e.fail(onFailure, fmt.Errorf("nats: decode %s result: %w", command, err))
				return
			}
		}
		onSuccess(result)
	}()
}

// subscribe arms the standing notification subscription. Installing a new
// listener drains the previous subscription first.
func (e *Executor) subscribe(onSuccess func(result any), onFailure func(err error)) {
	subject := e.prefix + ".notify"

	sub, err := e.nc.Subscribe(subject, func(msg *natspkg.Msg) {
		fields := map[string]any{}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &fields); err != nil {
				e.logger.Warn("malformed notification payload", "subject", subject, "err", err)
				return
			}
		}
		if onSuccess != nil {
			onSuccess(fields)
		}
	})
	if err != nil {
		e.fail(onFailure, fmt.Errorf("nats: subscribe %s: %w", subject, err))
		return
	}

	e.mu.Lock()
	old := e.notifSub
	e.notifSub = sub
	e.mu.Unlock()
	if old != nil {
		if err := old.Unsubscribe(); err != nil {
			e.logger.Debug("failed to drop previous notification subscription", "err", err)
		}
	}
}

func (e *Executor) fail(onFailure func(err error), err error) {
	if onFailure == nil {
		e.logger.Warn("command failed with no failure callback", "err", err)
		return
	}
	go onFailure(err)
}
