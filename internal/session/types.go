package session

// State is a session's lifecycle state.
type State int

const (
	// StateCreated is the state before Start.
	StateCreated State = iota
	// StateStarted is the state while the search runs.
	StateStarted
	// StateStopping is entered by Stop.
	StateStopping
	// StateDone is entered once Join has returned.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// EventKind classifies an Event.
type EventKind int

const (
	// EventSourceStarted is sent when a worker is admitted for a source.
	EventSourceStarted EventKind = iota
	// EventSourceFinished is sent when a worker has delivered its last record.
	EventSourceFinished
	// EventSourceFailed is sent when a source could not be opened.
	EventSourceFailed
	// EventSourceTruncated is sent when a read or decode error ended a source
	// early. EventSourceFinished follows.
	EventSourceTruncated
)

// Event reports progress on one source.
type Event struct {
	Kind      EventKind
	Source    string
	Records   int
	Cancelled bool
	Err       error
}

// Stats are counters for one session.
type Stats struct {
	ID string
	// Files is the number of sources admitted.
	Files int
	// Records is the number of records yielded to the caller.
	Records int
	// Failed is the number of sources that could not be opened.
	Failed int
	// PeakActive is the largest number of workers running at once.
	PeakActive int
	// PeakBuffered is the largest number of records buffered at once.
	PeakBuffered int
	// KilledUnits is the number of worker processes killed at Join because
	// they had not exited after delivering their output.
	KilledUnits int
}
