package position

// State is the lifecycle state of a single position.
type State int

const (
	StateUninitialized State = iota
	StateMonitoring
	StatePaused
	StateExitConditionMet
	StateExitApproved
	StateExitPending
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMonitoring:
		return "monitoring"
	case StatePaused:
		return "paused"
	case StateExitConditionMet:
		return "exit_condition_met"
	case StateExitApproved:
		return "exit_approved"
	case StateExitPending:
		return "exit_pending"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can leave s.
func (s State) Terminal() bool {
	return s == StateClosed
}

// Event is a requested lifecycle transition.
type Event int

const (
	EventPositionOpened Event = iota
	EventPauseRequested
	EventResumeRequested
	EventExitConditionMet
	EventExitApproved
	EventExitInitiated
	EventExitCompleted
	EventErrorOccurred
	EventRecovered
)

func (e Event) String() string {
	switch e {
	case EventPositionOpened:
		return "position_opened"
	case EventPauseRequested:
		return "pause_requested"
	case EventResumeRequested:
		return "resume_requested"
	case EventExitConditionMet:
		return "exit_condition_met"
	case EventExitApproved:
		return "exit_approved"
	case EventExitInitiated:
		return "exit_initiated"
	case EventExitCompleted:
		return "exit_completed"
	case EventErrorOccurred:
		return "error_occurred"
	case EventRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// transitions is the full legal-transition table. Missing entries are invalid
// transitions and fail as a no-op, which is the expected outcome when several
// callers race toward different states.
var transitions = map[State]map[Event]State{
	StateUninitialized: {
		EventPositionOpened: StateMonitoring,
		EventErrorOccurred:  StateError,
	},
	StateMonitoring: {
		EventPauseRequested:   StatePaused,
		EventExitConditionMet: StateExitConditionMet,
		EventErrorOccurred:    StateError,
	},
	StatePaused: {
		EventResumeRequested:  StateMonitoring,
		EventExitConditionMet: StateExitConditionMet,
		EventErrorOccurred:    StateError,
	},
	StateExitConditionMet: {
		EventExitApproved:  StateExitApproved,
		EventErrorOccurred: StateError,
	},
	StateExitApproved: {
		EventExitInitiated: StateExitPending,
		EventExitCompleted: StateClosed,
		EventErrorOccurred: StateError,
	},
	StateExitPending: {
		EventExitCompleted: StateClosed,
		EventErrorOccurred: StateError,
	},
	StateError: {
		EventRecovered:     StateMonitoring,
		EventExitCompleted: StateClosed,
	},
}

// nextState returns the target state for event from current, if legal.
func nextState(current State, event Event) (State, bool) {
	row, ok := transitions[current]
	if !ok {
		return current, false
	}
	target, ok := row[event]
	return target, ok
}

// closingEvent returns the event that advances current toward Closed, used by
// the manager's close path to walk the exit ladder from whatever state the
// position is in.
func closingEvent(current State) (Event, bool) {
	switch current {
	case StateUninitialized:
		return EventErrorOccurred, true
	case StateMonitoring, StatePaused:
		return EventExitConditionMet, true
	case StateExitConditionMet:
		return EventExitApproved, true
	case StateExitApproved, StateExitPending, StateError:
		return EventExitCompleted, true
	default:
		return 0, false
	}
}
