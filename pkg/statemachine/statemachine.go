package statemachine

import (
	"context"
	"sync"
)

// Guard vetoes a transition based on runtime data.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Transition is one edge of the machine.
type Transition[S, E comparable, D any] struct {
	From   S
	To     S
	Event  E
	Guards []Guard[S, E, D]
}

// Table is a stateless transition table. The state of each entity lives with
// the entity; Next only answers where a given state goes on a given event,
// so one Table serves every entity concurrently.
type Table[S, E comparable, D any] struct {
	mu          sync.RWMutex
	transitions map[S]map[E][]Transition[S, E, D]
	wildcard    map[E][]Transition[S, E, D]
}

// New returns an empty table.
func New[S, E comparable, D any]() *Table[S, E, D] {
	return &Table[S, E, D]{
		transitions: make(map[S]map[E][]Transition[S, E, D]),
		wildcard:    make(map[E][]Transition[S, E, D]),
	}
}

// Add registers from --event--> to. Several transitions may share a from
// and event; the first whose guards all pass wins, in registration order.
func (t *Table[S, E, D]) Add(from S, event E, to S, guards ...Guard[S, E, D]) *Table[S, E, D] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.transitions[from] == nil {
		t.transitions[from] = make(map[E][]Transition[S, E, D])
	}
	t.transitions[from][event] = append(t.transitions[from][event], Transition[S, E, D]{
		From: from, To: to, Event: event, Guards: guards,
	})
	return t
}

// AddFromAny registers event --> to for every source state. Transitions
// added with Add for a specific state are tried first.
func (t *Table[S, E, D]) AddFromAny(event E, to S, guards ...Guard[S, E, D]) *Table[S, E, D] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wildcard[event] = append(t.wildcard[event], Transition[S, E, D]{To: to, Event: event, Guards: guards})
	return t
}

// Next returns the target of the first matching transition. It fails with
// *ErrNoTransitionAvailable when nothing is registered for from and event,
// and with *ErrTransitionRejected when guards rejected every candidate.
func (t *Table[S, E, D]) Next(ctx context.Context, from S, event E, data D) (S, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := t.transitions[from][event]
	candidates = append(candidates[:len(candidates):len(candidates)], t.wildcard[event]...)
	if len(candidates) == 0 {
		return from, NewErrNoTransitionAvailable(from, event)
	}

	for _, tr := range candidates {
		if passes(ctx, tr.Guards, from, event, data) {
			return tr.To, nil
		}
	}
	return from, NewErrTransitionRejected(from, event)
}

// Can reports whether Next would succeed.
func (t *Table[S, E, D]) Can(ctx context.Context, from S, event E, data D) bool {
	_, err := t.Next(ctx, from, event, data)
	return err == nil
}

func passes[S, E comparable, D any](ctx context.Context, guards []Guard[S, E, D], from S, event E, data D) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
