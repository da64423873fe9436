package device

import (
	"context"

	"github.com/pkg/errors"
)

// EventType is the terminal event kind of a device action.
type EventType int

const (
	// EventCompleted carries the action result payload
	EventCompleted EventType = iota

	// EventError carries a device-reported failure
	EventError

	// EventStopped signals explicit user cancellation on-device
	EventStopped
)

// Event is the single terminal event of a device action.
type Event struct {
	Type    EventType
	Payload []byte
	Err     error
}

// Action is a long-running device operation modeled as a single-valued
// asynchronous result: exactly one terminal event is ever delivered on Done.
type Action interface {
	Done() <-chan Event
}

// Await consumes the one terminal event of an action and maps it to the
// surfaced error taxonomy: Completed resolves to the payload, Error to
// ErrActionFailed carrying the device-reported cause, Stopped to
// ErrActionStopped.
func Await(ctx context.Context, action Action) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-action.Done():
		switch event.Type {
		case EventCompleted:
			return event.Payload, nil
		case EventStopped:
			return nil, ErrActionStopped
		case EventError:
			if event.Err != nil {
				return nil, errors.Wrap(ErrActionFailed, event.Err.Error())
			}

			return nil, ErrActionFailed
		default:
			return nil, errors.Errorf("unexpected device event type %d", event.Type)
		}
	}
}

// action is a buffered single-event Action used by transports that already
// hold a terminal result.
type action struct {
	done chan Event
}

func (a *action) Done() <-chan Event {
	return a.done
}

func newTerminalAction(event Event) Action {
	done := make(chan Event, 1)
	done <- event

	return &action{done: done}
}

// CompletedAction returns an action already resolved with a payload.
func CompletedAction(payload []byte) Action {
	return newTerminalAction(Event{Type: EventCompleted, Payload: payload})
}

// FailedAction returns an action already rejected with a device error.
func FailedAction(err error) Action {
	return newTerminalAction(Event{Type: EventError, Err: err})
}

// StoppedAction returns an action already cancelled by the user.
func StoppedAction() Action {
	return newTerminalAction(Event{Type: EventStopped})
}
