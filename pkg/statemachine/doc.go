// Package statemachine provides a generic, stateless finite-state-machine
// transition table.
//
// States and events are any comparable types, typically string enums. The
// table does not hold a current state: callers pass the entity's stored
// state to Next and persist the result themselves, which keeps one table
// safe to share across goroutines and entities.
//
//	type Status string
//
//	lifecycle := statemachine.New[Status, string, string]().
//		Add("draft", "submit", "in_review").
//		AddFromAny("archive", "archived")
//
//	next, err := lifecycle.Next(ctx, doc.Status, "submit", "")
//
// Guards veto transitions based on the data argument. When several
// transitions share a state and event the first whose guards pass wins,
// which allows data-driven branching:
//
//	isPaid := func(ctx context.Context, from Status, event string, data string) bool {
//		return data == "paid"
//	}
//	lifecycle.Add("pending", "settle", "active", isPaid).Add("pending", "settle", "failed")
//
// Use IsNoTransitionAvailableError and IsTransitionRejectedError to tell an
// undefined transition from a vetoed one.
package statemachine
