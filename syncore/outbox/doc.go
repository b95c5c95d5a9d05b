// Package outbox delivers commands to a remote endpoint through a durable FIFO.
//
// Submit persists a command through a Repository and wakes the flush loop.
// The loop posts the head of the queue, removes it on a 2xx, and retries the
// same head with growing delays on network failures and 5xx responses. At
// most one POST is in flight at any time and commands are never reordered.
//
// Delivery is at-least-once: a command whose acknowledgement is lost is sent
// again. Commands carry no idempotency key.
package outbox
