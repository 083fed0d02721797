package transport

// Kind identifies what an acquired transport carries.
type Kind int

const (
	// KindUnknown is the zero value for an unknown transport kind.
	KindUnknown Kind = iota
	// KindData indicates a data channel able to carry render hints.
	KindData
	// KindSignal indicates a signalling-only transport.
	KindSignal
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// IsValid returns true if the kind is a known valid kind.
func (k Kind) IsValid() bool {
	return k == KindData || k == KindSignal
}

// ParseKind returns the Kind for a wire name, or KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case "data":
		return KindData
	case "signal":
		return KindSignal
	default:
		return KindUnknown
	}
}
