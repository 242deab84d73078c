package executor

import "fmt"

// State is the lifecycle position of a run.
type State int32

const (
	StateCreated State = iota
	StateIngesting
	StateFormatting
	StateRestoring
	StateRunning
	StateExporting
	StateFinished
	StateFailed
	StateStopped
)

var stateNames = [...]string{
	StateCreated:    "created",
	StateIngesting:  "ingesting",
	StateFormatting: "formatting",
	StateRestoring:  "restoring",
	StateRunning:    "running",
	StateExporting:  "exporting",
	StateFinished:   "finished",
	StateFailed:     "failed",
	StateStopped:    "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether the run has ended.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateStopped
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("executor: unknown state %q", b)
}
