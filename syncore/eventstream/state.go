package eventstream

// State is the position of the poll loop.
type State int32

const (
	// StatePolling means a GET is scheduled without delay or in flight.
	StatePolling State = iota
	// StateWaiting means the stream is at its head or empty.
	StateWaiting
	// StateBackoff means a failed GET is waiting to be retried.
	StateBackoff
	// StateHalted means an unclassifiable response stopped the poller.
	StateHalted
	// StateDisabled means Disable was called.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateWaiting:
		return "waiting"
	case StateBackoff:
		return "backoff"
	case StateHalted:
		return "halted"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
