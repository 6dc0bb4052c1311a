// --- File: pushclient/client.go ---
// Package pushclient is the application-facing facade for push notifications.
// It validates inputs, translates calls into bridge commands, normalizes
// bridge results into typed values, and owns the single "last notification"
// slot. All asynchrony lives in the bridge.Executor collaborator; the facade
// itself never blocks and holds no lock.
package pushclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-client/pkg/bridge"
)

var (
	// ErrNilCallback is returned when a required callback is missing.
	// The call is a no-op: the executor is never contacted.
	ErrNilCallback = errors.New("pushclient: nil callback")

	// ErrUnknownType marks a notification-type flag outside the defined set.
	ErrUnknownType = errors.New("pushclient: unknown notification type")
)

// SnapshotStore persists the most recent notification for an account.
// Implementations live in internal/storage; a nil store disables persistence.
type SnapshotStore interface {
	Save(ctx context.Context, accountID string, n Notification) error
}

// Client is the push-notification facade. Create one per application session
// with New; there is no explicit teardown, Unregister is a soft disable
// rather than destruction.
type Client struct {
	executor  bridge.Executor
	snapshots SnapshotStore
	logger    *slog.Logger

	// last is the single mutable slot shared between the listener-delivery
	// path (sole writer) and LastNotification readers. The executor is
	// assumed to serialize its own listener invocations; the atomic pointer
	// makes reads safe from any goroutine regardless.
	last    atomic.Pointer[Notification]
	state   atomic.Int32
	account atomic.Pointer[urn.URN]
}

// New wires the facade to its bridge. snapshots may be nil.
func New(executor bridge.Executor, snapshots SnapshotStore, logger *slog.Logger) *Client {
	return &Client{
		executor:  executor,
		snapshots: snapshots,
		logger:    logger.With("component", "PushClient"),
	}
}

// ConnectToServer points the native layer at a relay server. Fire-and-forget:
// no result is observed and no validation is performed (invalid endpoints
// are the native layer's concern).
func (c *Client) ConnectToServer(address string, port int) {
	c.executor.Execute(nil, nil, bridge.CommandInitialize, bridge.InitializePayload{
		ServerAddress: address,
		ServerPort:    port,
	})
}

// Register begins an asynchronous registration attempt. Exactly one of
// onSuccess/onFailure is eventually invoked with the terminal result: the
// opaque device token on success, the bridge error verbatim on failure.
// onFailure may be nil, which suppresses the failure branch. A nil onSuccess
// aborts the call with ErrNilCallback before the executor is contacted.
//
// Each call runs its own pending attempt; a new call restarts the lifecycle
// regardless of the previous outcome, and concurrent calls are independent.
func (c *Client) Register(onSuccess func(token string), onFailure func(err error)) error {
	if onSuccess == nil {
		return fmt.Errorf("%w: register requires an onSuccess callback", ErrNilCallback)
	}

	c.state.Store(int32(StatePending))

	var once sync.Once
	c.executor.Execute(
		func(result any) {
			once.Do(func() {
				c.state.Store(int32(StateRegistered))
				onSuccess(tokenString(result))
			})
		},
		func(err error) {
			once.Do(func() {
				c.state.Store(int32(StateFailed))
				if onFailure != nil {
					onFailure(err)
				} else {
					c.logger.Warn("registration failed with no failure callback installed", "err", err)
				}
			})
		},
		bridge.CommandRegister, nil)
	return nil
}

// Unregister soft-disables the registration. onComplete, when non-nil, is
// invoked exactly once on completion whether the native layer reported
// success or failure. The failure path is intentionally not surfaced, an
// asymmetry with Register kept from the protocol this client speaks.
func (c *Client) Unregister(onComplete func()) {
	var once sync.Once
	complete := func() {
		once.Do(func() {
			if onComplete != nil {
				onComplete()
			}
		})
	}

	c.executor.Execute(
		func(any) { complete() },
		func(err error) {
			c.logger.Debug("unregister reported an error; treating as complete", "err", err)
			complete()
		},
		bridge.CommandUnregister, nil)
}

// ConfigureTypes sets which notification types the device accepts. An empty
// types list enables everything (badge|sound|alert). A flag outside the
// defined set is reported synchronously through onFailure and the executor is
// never contacted. Both callbacks are optional.
func (c *Client) ConfigureTypes(onSuccess func(), onFailure func(err error), types ...NotificationType) {
	set, err := NewTypeSet(types...)
	if err != nil {
		if onFailure != nil {
			onFailure(err)
		} else {
			c.logger.Warn("invalid notification types", "err", err)
		}
		return
	}

	var once sync.Once
	c.executor.Execute(
		func(any) {
			once.Do(func() {
				if onSuccess != nil {
					onSuccess()
				}
			})
		},
		func(err error) {
			once.Do(func() {
				if onFailure != nil {
					onFailure(err)
				}
			})
		},
		bridge.CommandTypes, bridge.TypesPayload{Bitmask: set.Bitmask()})
}

// SetAccountID associates the device with an account. Fire-and-forget; the
// payload is the raw URN string.
func (c *Client) SetAccountID(account urn.URN) {
	c.account.Store(&account)
	c.executor.Execute(nil, nil, bridge.CommandAccountID, account.String())
}

// SetListener installs the standing notification callback. Each inbound
// notification is normalized (missing fields default to empty string / zero),
// stored as the client's last notification, and handed to onNotification.
// Deliveries arrive in the executor's order; the slot keeps only the most
// recent value, so slow readers observe superseded notifications only through
// the callback stream. Calling SetListener again installs a new standing
// callback; whether the native layer drops the previous one is its concern.
func (c *Client) SetListener(onNotification func(Notification)) error {
	if onNotification == nil {
		return fmt.Errorf("%w: listener requires an onNotification callback", ErrNilCallback)
	}

	c.executor.Execute(
		func(result any) {
			n := normalizeNotification(result)
			c.last.Store(&n)
			c.persistSnapshot(n)
			onNotification(n)
		},
		func(err error) {
			c.logger.Warn("notification listener reported an error", "err", err)
		},
		bridge.CommandListener, nil)
	return nil
}

// LastNotification returns the most recently delivered notification, or
// ok=false before the first delivery.
func (c *Client) LastNotification() (Notification, bool) {
	if n := c.last.Load(); n != nil {
		return *n, true
	}
	return Notification{}, false
}

// RegistrationState reports the lifecycle of the most recent Register call.
func (c *Client) RegistrationState() RegistrationState {
	return RegistrationState(c.state.Load())
}

// persistSnapshot writes the slot to the snapshot store when one is wired.
// Persistence is an optimization, not a transaction: errors are logged and
// delivery proceeds regardless.
func (c *Client) persistSnapshot(n Notification) {
	if c.snapshots == nil {
		return
	}
	accountID := ""
	if a := c.account.Load(); a != nil {
		accountID = a.String()
	}
	if err := c.snapshots.Save(context.Background(), accountID, n); err != nil {
		c.logger.Warn("failed to persist notification snapshot", "err", err)
	}
}

// tokenString renders the opaque registration token. Bridges deliver string
// tokens; anything else is carried through in its string form.
func tokenString(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return fmt.Sprint(result)
}

// normalizeNotification extracts message/sound/iconBadge from a raw listener
// payload, defaulting any missing or mistyped field.
func normalizeNotification(raw any) Notification {
	var n Notification
	fields, ok := raw.(map[string]any)
	if !ok {
		return n
	}
	if v, ok := fields["message"].(string); ok {
		n.Message = v
	}
	if v, ok := fields["sound"].(string); ok {
		n.Sound = v
	}
	switch v := fields["iconBadge"].(type) {
	case int:
		n.IconBadgeCount = v
	case int64:
		n.IconBadgeCount = int(v)
	case float64:
		// JSON numbers decode as float64.
		n.IconBadgeCount = int(v)
	}
	return n
}
