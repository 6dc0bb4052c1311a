// --- File: pushclient/types.go ---
package pushclient

import (
	"fmt"
	"strings"
)

// NotificationType is a single notification-type flag.
type NotificationType uint8

const (
	TypeBadge NotificationType = 1 << iota
	TypeSound
	TypeAlert
)

// TypeAll is the union of every defined flag.
const TypeAll = TypeBadge | TypeSound | TypeAlert

// ParseNotificationType maps a type name ("badge", "sound", "alert") to its
// flag value. Callers composing type lists from config or user input use this
// rather than hard-coding bit values.
func ParseNotificationType(name string) (NotificationType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "badge":
		return TypeBadge, nil
	case "sound":
		return TypeSound, nil
	case "alert":
		return TypeAlert, nil
	default:
		return 0, fmt.Errorf("unknown notification type %q", name)
	}
}

func (t NotificationType) String() string {
	switch t {
	case TypeBadge:
		return "badge"
	case TypeSound:
		return "sound"
	case TypeAlert:
		return "alert"
	default:
		return fmt.Sprintf("NotificationType(%d)", uint8(t))
	}
}

// TypeSet is a bitmask union of NotificationType flags. Its value is always
// a union of the defined bits (0 through 7).
type TypeSet uint8

// NewTypeSet folds the given flags into a bitmask. Order and duplicates are
// irrelevant. An empty list means "everything" and yields TypeAll. Any value
// that is not one of the defined flags is rejected.
func NewTypeSet(types ...NotificationType) (TypeSet, error) {
	if len(types) == 0 {
		return TypeSet(TypeAll), nil
	}
	var set TypeSet
	for _, t := range types {
		if t == 0 || t&^TypeAll != 0 {
			return 0, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
		}
		set |= TypeSet(t)
	}
	return set, nil
}

// Bitmask returns the wire encoding of the set.
func (s TypeSet) Bitmask() uint8 { return uint8(s) }

// Has reports whether the flag is enabled in the set.
func (s TypeSet) Has(t NotificationType) bool { return uint8(s)&uint8(t) != 0 }

// Notification is the normalized form of an inbound push notification.
// Missing fields in the raw bridge payload default to the zero values here.
type Notification struct {
	Message        string `json:"message"`
	Sound          string `json:"sound"`
	IconBadgeCount int    `json:"iconBadgeCount"`
}

// RegistrationState tracks the lifecycle of the most recent Register call.
type RegistrationState int32

const (
	StateIdle RegistrationState = iota
	StatePending
	StateRegistered
	StateFailed
)

func (s RegistrationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RegistrationState(%d)", int32(s))
	}
}
