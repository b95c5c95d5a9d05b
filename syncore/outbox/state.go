package outbox

// State is the position of the flush loop.
type State int32

const (
	// StateIdle means no flush is scheduled or in flight.
	StateIdle State = iota
	// StateFlushing means a POST for the head is in flight or the next head is queued.
	StateFlushing
	// StateBackoff means a retry of the head is waiting for its delay.
	StateBackoff
	// StateHalted means an unexpected response stopped the loop for good.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFlushing:
		return "flushing"
	case StateBackoff:
		return "backoff"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}
