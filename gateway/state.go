package gateway

// State is the lifecycle position of a Server.
type State int

const (
	// StateCreated: configured, nothing bound.
	StateCreated State = iota
	// StateListening: bound and accepting.
	StateListening
	// StateStopped: shut down, or the accept loop has exited.  Terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
