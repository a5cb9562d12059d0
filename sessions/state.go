package sessions

// State is where a tenant's session is in the pairing lifecycle
type State int

const (
	StateInitializing State = iota + 1
	StateAwaitingScan
	StateReady
	StateAuthFailed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth_failed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "none"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pending is true while the session still needs a pairing code scanned
func (s State) Pending() bool {
	return s == StateInitializing || s == StateAwaitingScan
}

// Terminal states end the record's life
func (s State) Terminal() bool {
	return s == StateAuthFailed || s == StateDisconnected
}
