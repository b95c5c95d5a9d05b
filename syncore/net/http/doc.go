// Package http serves the asynchronous web API: a command passthrough that
// accepts JSON posts and an event feed that exposes an eventstream.Log as a
// linked chain of cacheable resources.
//
// Request handling is routed through strategy tables. Exactly one strategy
// must accept a request; anything else is a server error.
package http
