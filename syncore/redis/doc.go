// Package redis stores outbox commands, poller positions and a server-side
// event log in Redis lists and strings, and provides a distributed lease so a
// single process polls a shared stream at a time.
package redis
