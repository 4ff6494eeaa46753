package publisher

// State is a step of the posting state machine.
type State string

const (
	StatePending        State = "pending"
	StateMediaUploading State = "media_uploading"
	StatePosted         State = "posted"
	StateRepliedTo      State = "replied_to"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var transitions = map[State][]State{
	StatePending:        {StateMediaUploading, StatePosted},
	StateMediaUploading: {StatePosted},
	StatePosted:         {StateRepliedTo, StateDone},
	StateRepliedTo:      {StateRepliedTo, StateDone},
}

// CanTransition reports whether the machine may move from one state to
// another. Failed is reachable from every state except Done.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateDone && from != StateFailed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type tracker struct {
	state   State
	history []State
}

func newTracker() *tracker {
	return &tracker{state: StatePending, history: []State{StatePending}}
}

// to moves to s. Illegal moves are ignored so a repeated state never
// corrupts the history.
func (t *tracker) to(s State) {
	if !CanTransition(t.state, s) {
		return
	}
	if s == t.state && s != StateRepliedTo {
		return
	}
	t.state = s
	t.history = append(t.history, s)
}

func (t *tracker) fail() {
	if t.state == StateFailed {
		return
	}
	t.state = StateFailed
	t.history = append(t.history, StateFailed)
}
