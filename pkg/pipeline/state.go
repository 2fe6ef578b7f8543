package pipeline

// State is the orchestrator's position in a run.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes a state transition. Index and Stage identify the stage
// being run or the one that failed; Index is -1 before the first stage.
type Event struct {
	RunID string
	State State
	Index int
	Stage string
	Err   error
}

// Observer receives state transitions in order. It is called synchronously
// from the run loop.
type Observer func(Event)
