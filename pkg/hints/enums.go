package hints

// State is the state of the flush state machine.
type State int

const (
	// StateIdle indicates no request is outstanding.
	StateIdle State = iota

	// StateAwaitingReply indicates one batch was published and no
	// render_hints reply has been accepted yet.
	StateAwaitingReply
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingReply:
		return "AwaitingReply"
	default:
		return "Unknown"
	}
}

// ResultCode is the per-track outcome carried in a render_hints reply.
// Codes other than the ones declared here are passed through verbatim.
type ResultCode string

const (
	// ResultOK indicates the hint was applied.
	ResultOK ResultCode = "OK"

	// ResultInvalidRenderHint indicates the server rejected the hint.
	ResultInvalidRenderHint ResultCode = "INVALID_RENDER_HINT"
)

// IsOK returns true if the code reports success.
func (c ResultCode) IsOK() bool {
	return c == ResultOK
}
