package discovery

import "testing"

func TestScheme(t *testing.T) {
	tests := []struct {
		scheme Scheme
		str    string
		valid  bool
	}{
		{SchemeWebSocket, "ws", true},
		{SchemeTCP, "tcp", true},
		{SchemeUnknown, "unknown", false},
		{Scheme(99), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.scheme.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.scheme.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if tt.valid && ParseScheme(tt.str) != tt.scheme {
				t.Errorf("ParseScheme(%q) = %v, want %v", tt.str, ParseScheme(tt.str), tt.scheme)
			}
		})
	}

	if ParseScheme("udp") != SchemeUnknown {
		t.Error("ParseScheme(udp) should be SchemeUnknown")
	}
}
