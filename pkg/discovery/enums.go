package discovery

// DNS-SD service identifiers.
const (
	// ServiceRenderHints is the service type of a render hint endpoint.
	ServiceRenderHints = "_renderhints._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// Scheme identifies the transport an advertised endpoint speaks.
type Scheme uint8

const (
	// SchemeUnknown is the zero value for an unknown scheme.
	SchemeUnknown Scheme = iota
	// SchemeWebSocket is a WebSocket endpoint; TXT "path" names the URL path.
	SchemeWebSocket
	// SchemeTCP is a length-prefixed TCP stream endpoint.
	SchemeTCP
)

// String returns the TXT value of the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeWebSocket:
		return "ws"
	case SchemeTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// IsValid returns true if the scheme is a known valid scheme.
func (s Scheme) IsValid() bool {
	return s == SchemeWebSocket || s == SchemeTCP
}

// ParseScheme returns the Scheme for a TXT value, or SchemeUnknown.
func ParseScheme(v string) Scheme {
	switch v {
	case "ws":
		return SchemeWebSocket
	case "tcp":
		return SchemeTCP
	default:
		return SchemeUnknown
	}
}
