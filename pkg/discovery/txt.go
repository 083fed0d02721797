package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys.
const (
	TXTKeyVersion = "v"
	TXTKeyScheme  = "tr"
	TXTKeyPath    = "path"
)

// ProtocolVersion is the render hint protocol version advertised in TXT "v".
const ProtocolVersion = 1

// DefaultPath is the URL path of a WebSocket endpoint.
const DefaultPath = "/hints"

// ServiceTXT is the TXT record of a render hint endpoint.
type ServiceTXT struct {
	// Version is the protocol version. Zero encodes as ProtocolVersion.
	Version int

	// Scheme is the transport the endpoint speaks.
	Scheme Scheme

	// Path is the URL path for SchemeWebSocket. Empty encodes as DefaultPath.
	Path string
}

// Validate checks the record before advertising.
func (t *ServiceTXT) Validate() error {
	if !t.Scheme.IsValid() {
		return ErrInvalidScheme
	}
	if t.Version < 0 {
		return fmt.Errorf("%w: negative version", ErrInvalidTXTRecord)
	}
	if t.Path != "" && !strings.HasPrefix(t.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidTXTRecord, t.Path)
	}
	return nil
}

// Encode returns the TXT strings in key=value form.
func (t *ServiceTXT) Encode() []string {
	version := t.Version
	if version == 0 {
		version = ProtocolVersion
	}

	records := []string{
		TXTKeyVersion + "=" + strconv.Itoa(version),
		TXTKeyScheme + "=" + t.Scheme.String(),
	}

	if t.Scheme == SchemeWebSocket {
		path := t.Path
		if path == "" {
			path = DefaultPath
		}
		records = append(records, TXTKeyPath+"="+path)
	}

	return records
}

// ParseTXT parses key=value TXT strings into a map. Strings without '='
// are boolean attributes and map to an empty value.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string, len(records))
	for _, r := range records {
		if k, v, ok := strings.Cut(r, "="); ok {
			result[k] = v
		} else if r != "" {
			result[r] = ""
		}
	}
	return result
}

// ParseServiceTXT decodes the TXT record of a render hint endpoint.
// A missing scheme defaults to SchemeWebSocket and a missing path to
// DefaultPath.
func ParseServiceTXT(records []string) (ServiceTXT, error) {
	kv := ParseTXT(records)

	txt := ServiceTXT{Version: ProtocolVersion, Scheme: SchemeWebSocket}

	if v, ok := kv[TXTKeyVersion]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ServiceTXT{}, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, v)
		}
		if n != ProtocolVersion {
			return ServiceTXT{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, n)
		}
		txt.Version = n
	}

	if v, ok := kv[TXTKeyScheme]; ok {
		txt.Scheme = ParseScheme(v)
		if !txt.Scheme.IsValid() {
			return ServiceTXT{}, fmt.Errorf("%w: %q", ErrInvalidScheme, v)
		}
	}

	if txt.Scheme == SchemeWebSocket {
		txt.Path = DefaultPath
		if v, ok := kv[TXTKeyPath]; ok && v != "" {
			txt.Path = v
		}
	}

	return txt, nil
}
