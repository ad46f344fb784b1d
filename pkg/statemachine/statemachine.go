// Package statemachine implements finite state machines over string-named
// states and events.
//
// A Definition holds the transition table and is immutable once built, so
// one Definition can be shared by every entity of a kind. A Machine tracks
// the current state of a single entity:
//
//	def := statemachine.MustDefine(
//		statemachine.WithTransition(Pending, Paid, Confirm),
//		statemachine.WithTransition(Pending, Expired, Expire),
//	)
//	m := def.Machine(Pending)
//	if err := m.Fire(ctx, Confirm, nil); err != nil { ... }
package statemachine

import (
	"context"
	"fmt"
	"sync"
)

type State interface {
	Name() string
}

type Event interface {
	Name() string
}

// Guard vetoes a transition when it returns false.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs before the state changes; an error aborts the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

type StringState string

func (s StringState) Name() string { return string(s) }

type StringEvent string

func (e StringEvent) Name() string { return string(e) }

type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// Definition is the transition table. It is safe for concurrent use.
type Definition struct {
	table map[string]map[string][]Transition
}

type Option func(*Definition) error

// Define builds a Definition from opts.
func Define(opts ...Option) (*Definition, error) {
	d := &Definition{table: make(map[string]map[string][]Transition)}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func MustDefine(opts ...Option) *Definition {
	d, err := Define(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return d
}

type TransitionOption func(*Transition)

func WithGuard(g Guard) TransitionOption {
	return func(t *Transition) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction(a Action) TransitionOption {
	return func(t *Transition) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}

// WithTransition registers from --event--> to. Several transitions may share
// a from/event pair; the first whose guards pass wins.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		if from == nil || to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		byEvent, ok := d.table[from.Name()]
		if !ok {
			byEvent = make(map[string][]Transition)
			d.table[from.Name()] = byEvent
		}
		byEvent[event.Name()] = append(byEvent[event.Name()], t)
		return nil
	}
}

// Next resolves the target state without running actions.
func (d *Definition) Next(ctx context.Context, from State, event Event, data any) (State, error) {
	t, err := d.resolve(ctx, from, event, data)
	if err != nil {
		return nil, err
	}
	return t.To, nil
}

// IsTerminal reports whether no event leads out of s.
func (d *Definition) IsTerminal(s State) bool {
	return len(d.table[s.Name()]) == 0
}

func (d *Definition) resolve(ctx context.Context, from State, event Event, data any) (*Transition, error) {
	if from == nil || event == nil {
		return nil, ErrInvalidEvent
	}
	candidates := d.table[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return nil, &NoTransitionError{State: from.Name(), Event: event.Name()}
	}
	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, from, event, data) {
			return &candidates[i], nil
		}
	}
	return nil, &RejectedError{State: from.Name(), Event: event.Name()}
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}

// Machine is the state of one entity driven by a Definition.
type Machine struct {
	def     *Definition
	mu      sync.Mutex
	current State
}

func (d *Definition) Machine(initial State) *Machine {
	return &Machine{def: d, current: initial}
}

func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.def.resolve(ctx, m.current, event, data)
	return err == nil
}

// Fire moves the machine along event, running the transition's actions first.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.def.resolve(ctx, m.current, event, data)
	if err != nil {
		return err
	}
	for _, a := range t.Actions {
		if err := a(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}
	m.current = t.To
	return nil
}
