package relay

// State is a stage of the per-connection state machine.
type State int32

const (
	StateConnecting State = iota
	StateReplaying
	StateListening
	StatePersistingUserTurn
	StateStreamingReply
	StatePersistingReply
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReplaying:
		return "replaying"
	case StateListening:
		return "listening"
	case StatePersistingUserTurn:
		return "persisting_user_turn"
	case StateStreamingReply:
		return "streaming_reply"
	case StatePersistingReply:
		return "persisting_reply"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
