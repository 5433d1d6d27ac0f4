package node

import "fmt"

// State is the connection lifecycle state. Exactly one is active at a time.
type State uint8

const (
	StateInit State = iota
	StateRegistered
	StateConnecting
	StateConnected
	StatePublishing
	StateDisconnected
	StateConfigError State = 0xFE
	StateError       State = 0xFF
)

var stateNames = map[State]string{
	StateInit:         "init",
	StateRegistered:   "registered",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StatePublishing:   "publishing",
	StateDisconnected: "disconnected",
	StateConfigError:  "config_error",
	StateError:        "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(0x%02x)", uint8(s))
}

// Terminal reports whether s only exits through external intervention.
func (s State) Terminal() bool {
	return s == StateConfigError || s == StateError
}

// linked reports whether a broker disconnect is meaningful in s.
func (s State) linked() bool {
	switch s {
	case StateConnecting, StateConnected, StatePublishing:
		return true
	}
	return false
}
