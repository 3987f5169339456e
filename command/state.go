package command

import "fmt"

// State is where a pool's command buffer is in its lifecycle. A buffer moves
// Initial → Recording → Executable → Pending → Complete, and Reset returns it to Initial.
type State int32

const (
	StateInitial State = iota
	StateRecording
	StateExecutable
	StatePending
	StateComplete
)

var stateMapping = make(map[State]string)

func (s State) String() string {
	str, ok := stateMapping[s]
	if !ok {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return str
}

func init() {
	stateMapping[StateInitial] = "Initial"
	stateMapping[StateRecording] = "Recording"
	stateMapping[StateExecutable] = "Executable"
	stateMapping[StatePending] = "Pending"
	stateMapping[StateComplete] = "Complete"
}
