// Package log defines the logging interface used across syncore and typed
// logging fields.
//
// Components accept a Logger and default to NewNop. The zap package provides
// the production adapter.
package log
