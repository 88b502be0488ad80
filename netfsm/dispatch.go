package netfsm

import "nextgraph.dev/broker/types"

// Responder is one request variant's single async entry point (spec
// §4.F "each request variant has one responder type with a single
// async entry"). It performs side effects through the broker and
// sends zero or more replies through fsm, keyed by id; a streaming
// responder sends ErrPartialContent replies before its terminal one.
type Responder func(fsm *FSM, id int64, content []byte)

// Dispatcher is the actor registry (component F): one Responder per
// request kind, matched by RequestKind instead of a type switch over
// a decoded sum type, since Go lacks algebraic enums.
type Dispatcher struct {
	responders map[RequestKind]Responder
}

// NewDispatcher builds an empty registry; callers Register each
// responder (see netfsm/actors for the concrete set).
func NewDispatcher() *Dispatcher {
	return &Dispatcher{responders: make(map[RequestKind]Responder)}
}

// Register binds kind to r, overwriting any previous binding.
func (d *Dispatcher) Register(kind RequestKind, r Responder) {
	d.responders[kind] = r
}

// Handle looks up msg.Kind's responder and spawns it as a goroutine
// (spec §4.E "the FSM looks up the responder actor for that variant,
// spawns it if none exists, and forwards the decoded message").
// Responders do not share mutable state directly: each invocation
// gets its own goroutine and only touches the broker and the FSM's
// thread-safe Send.
func (d *Dispatcher) Handle(fsm *FSM, msg Message) {
	r, ok := d.responders[msg.Kind]
	if !ok {
		fsm.SendError(msg.Id, types.ErrInvalidRequest)
		return
	}
	go r(fsm, msg.Id, msg.Content)
}
