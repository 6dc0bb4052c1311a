// --- File: pkg/bridge/interfaces.go ---
// Package bridge defines the contract between the push client facade and the
// native layer that performs real device/network registration work.
package bridge

// Command names the operation an Executor is asked to perform.
type Command string

const (
	// CommandInitialize configures the relay server endpoint.
	// Payload: InitializePayload.
	CommandInitialize Command = "initialize"

	// CommandRegister begins device registration. No payload. The success
	// result is the opaque device token.
	CommandRegister Command = "register"

	// CommandUnregister tears down the registration. No payload.
	CommandUnregister Command = "unregister"

	// CommandTypes sets the enabled notification types. Payload: TypesPayload.
	CommandTypes Command = "types"

	// CommandAccountID associates the device with an account.
	// Payload: the raw account string.
	CommandAccountID Command = "accountID"

	// CommandListener installs the standing notification callback. No payload.
	// The success callback is repeatable: it fires once per inbound
	// notification for the life of the subscription, with a map[string]any
	// result carrying optional "message", "sound" and "iconBadge" fields.
	CommandListener Command = "listener"
)

// InitializePayload carries the relay endpoint for CommandInitialize.
type InitializePayload struct {
	ServerAddress string `json:"serverAddress"`
	ServerPort    int    `json:"serverPort"`
}

// TypesPayload carries the notification-type bitmask for CommandTypes.
type TypesPayload struct {
	Bitmask uint8 `json:"bitmask"`
}

// Executor is the asynchronous command bridge the client facade drives.
// Implementations must invoke at most one of onSuccess/onFailure, exactly
// once per call, at some later time and possibly from a different goroutine
// than the caller. The exception is CommandListener, whose onSuccess is a
// standing callback invoked once per inbound notification. Either callback
// may be nil; a nil callback suppresses that branch (fire-and-forget
// commands pass nil for both).
type Executor interface {
	Execute(onSuccess func(result any), onFailure func(err error), command Command, payload any)
}
