// Package zap adapts go.uber.org/zap to the syncore log.Logger interface.
//
// Messages and string field values are escaped for control characters, and
// logs emitted with a span in context carry trace_id and span_id.
package zap
