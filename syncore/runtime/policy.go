package runtime

// PanicPolicy decides what happens after a recovered panic has been recorded.
type PanicPolicy int

const (
	// KeepRunning swallows the panic after logging it.
	KeepRunning PanicPolicy = iota
	// CrashProcess re-panics after logging it.
	CrashProcess
)

// String returns the string representation of the policy.
func (policy PanicPolicy) String() string {
	switch policy {
	case KeepRunning:
		return "KeepRunning"
	case CrashProcess:
		return "CrashProcess"
	default:
		return "Unknown"
	}
}
