// Package transport defines the HTTP contract used by the outbox client and
// the event stream poller, and ships a resty-backed implementation guarded by
// a circuit breaker.
//
// Every request completes through a Callback invoked exactly once, from a
// goroutine owned by the transport. Callers that keep state must hop back onto
// their own scheduler before touching it.
package transport
