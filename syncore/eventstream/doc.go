// Package eventstream follows a server-provided linked list of events.
//
// Each event resource names the URI of its successor. The Poller fetches a
// URI, classifies the response with an exclusive rule table, and either moves
// to the successor, waits at the head of the stream, or backs off. Moving onto
// a genuine event records the position in a PositionStore and then hands the
// event to the Consumer, so a restarted poller resumes where it left off.
package eventstream
