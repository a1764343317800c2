package speech

import "fmt"

// State is the lifecycle position of a speech pipeline.
type State int

const (
	Idle State = iota
	Requesting
	Decoding
	Playing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Decoding:
		return "decoding"
	case Playing:
		return "playing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("speech: unknown state %q", text)
}

var transitions = map[State][]State{
	Idle:       {Requesting},
	Requesting: {Decoding, Failed},
	Decoding:   {Playing, Failed},
	Playing:    {Idle, Failed},
	Failed:     {Idle},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one observed state change.
type Transition struct {
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	From      State  `json:"from"`
	To        State  `json:"to"`
}
