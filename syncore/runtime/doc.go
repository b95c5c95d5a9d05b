// Package runtime provides panic recovery for goroutines started by syncore.
//
// SafeGo launches a goroutine whose panics are logged, recorded on the active
// span, and then either swallowed or re-raised according to a PanicPolicy.
package runtime
