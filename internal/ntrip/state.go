package ntrip

import "fmt"

// State is the connection state of the correction client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateNegotiating
	StateStreaming
	StateFailed
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateNegotiating:  "negotiating",
	StateStreaming:    "streaming",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// transitions lists the allowed moves of the network loop. Stop is not in
// the table; it forces StateDisconnected from anywhere.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateNegotiating, StateFailed},
	StateNegotiating:  {StateStreaming, StateFailed},
	StateStreaming:    {StateFailed},
	StateFailed:       {StateConnecting},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
