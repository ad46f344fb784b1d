package payment

import (
	"context"

	"github.com/storify-asia/storify/pkg/statemachine"
)

type Event = statemachine.StringEvent

const (
	EventConfirm Event = "confirm"
	EventExpire  Event = "expire"
	EventFail    Event = "fail"
)

var lifecycle = statemachine.MustDefine(
	statemachine.WithTransition(state(StatusPending), state(StatusPaid), EventConfirm),
	statemachine.WithTransition(state(StatusPending), state(StatusExpired), EventExpire),
	statemachine.WithTransition(state(StatusPending), state(StatusFailed), EventFail),
)

func state(s Status) statemachine.StringState {
	return statemachine.StringState(s)
}

// eventFor maps a target status onto the event that reaches it.
func eventFor(to Status) (Event, bool) {
	switch to {
	case StatusPaid:
		return EventConfirm, true
	case StatusExpired:
		return EventExpire, true
	case StatusFailed:
		return EventFail, true
	}
	return "", false
}

// NextStatus resolves the status reached by firing event from from.
func NextStatus(ctx context.Context, from Status, event statemachine.Event) (Status, error) {
	to, err := lifecycle.Next(ctx, state(from), event, nil)
	if err != nil {
		return from, err
	}
	return Status(to.Name()), nil
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return lifecycle.IsTerminal(state(s))
}
