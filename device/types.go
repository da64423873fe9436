// Package device models the session protocol of an external hardware signing
// device. The physical transport is an external collaborator; this package
// defines the interfaces the hardware signer state machine is built on and
// the single-terminal-event action contract used for long-running device
// operations.
package device

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrDeviceLocked is returned when the device reports it is locked;
	// the caller must unlock on-device and retry
	ErrDeviceLocked = errors.New("device is locked")

	// ErrDeviceBusy is returned when the device reports it is serving
	// another operation
	ErrDeviceBusy = errors.New("device is busy")

	// ErrActionStopped is returned when a device action terminates on a
	// "stopped" event (explicit user cancellation on-device)
	ErrActionStopped = errors.New("device action stopped by user")

	// ErrActionFailed is returned when a device action terminates on an
	// "error" event (device-reported failure)
	ErrActionFailed = errors.New("device action failed")

	// ErrNoDeviceFound is returned when discovery completes without finding
	// a compatible device
	ErrNoDeviceFound = errors.New("no compatible device found")
)

// State is the connection state of a signer-held device session.
type State int

const (
	// StateDisconnected means no live session exists
	StateDisconnected State = iota

	// StateConnecting means a discover-and-connect handshake is in flight
	StateConnecting

	// StateReady means a live session exists and the device accepted the
	// last status poll
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Status is the device-reported session status.
type Status int

const (
	// StatusReady means the device accepts operations
	StatusReady Status = iota

	// StatusLocked means the device requires on-device unlocking
	StatusLocked

	// StatusBusy means the device is serving another operation
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusLocked:
		return "locked"
	case StatusBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Info describes a discovered device.
type Info struct {
	// ID is the transport-level identifier used to connect
	ID string

	// Model is the human-readable device model name
	Model string
}

// Transport discovers devices and opens sessions against them.
type Transport interface {
	// Discover lists reachable compatible devices
	Discover(ctx context.Context) ([]Info, error)

	// Connect opens a session against one discovered device
	Connect(ctx context.Context, info Info) (Session, error)
}

// Session is one live connection to a device. A session serves exactly one
// operation at a time; callers must serialize use.
type Session interface {
	// ID identifies this session
	ID() uuid.UUID

	// Status polls the device-reported session status
	Status(ctx context.Context) (Status, error)

	// GetAddress starts an on-device address resolution for a derivation
	// path; the action payload is the 20-byte address
	GetAddress(ctx context.Context, path string) (Action, error)

	// SignMessage starts an on-device EIP-191 message signature; the action
	// payload is the 65-byte [R || S || V] signature
	SignMessage(ctx context.Context, path string, message []byte) (Action, error)

	// SignTransaction starts an on-device transaction signature over the
	// serialized unsigned transaction; the action payload is the serialized
	// signed transaction
	SignTransaction(ctx context.Context, path string, unsignedTx []byte) (Action, error)

	// SignTypedData starts an on-device EIP-712 signature over the JSON
	// typed data; the action payload is the 65-byte signature
	SignTypedData(ctx context.Context, path string, typedData []byte) (Action, error)

	// Close releases the session
	Close(ctx context.Context) error
}
