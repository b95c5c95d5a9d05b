// Package postgres stores outbox commands, poller positions and a server-side
// event log in PostgreSQL.
//
// Open connects through the pgx database/sql driver, routes reads of the
// event log through a primary/replica resolver, and applies the embedded
// schema migrations. Queue and position operations always use the primary.
package postgres
