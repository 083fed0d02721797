package discovery

import (
	"net"
	"testing"
)

func TestSortIPsByPreference(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("::1"),
		net.ParseIP("fe80::1"),
		net.ParseIP("fd00::1"),
		net.ParseIP("2001:db8::1"),
		net.ParseIP("192.168.1.10"),
	}

	got := SortIPsByPreference(ips)
	want := []string{"192.168.1.10", "2001:db8::1", "fd00::1", "fe80::1", "::1"}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Input untouched.
	if ips[0].String() != "::1" {
		t.Error("SortIPsByPreference modified its input")
	}
}

func TestIsUniqueLocal(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"fc00::1", true},
		{"fd12:3456::1", true},
		{"fe80::1", false},
		{"2001:db8::1", false},
		{"10.0.0.1", false},
	}

	for _, tt := range tests {
		if got := isUniqueLocal(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isUniqueLocal(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestFilterIPs(t *testing.T) {
	ips := []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("fd00::1"), net.ParseIP("127.0.0.1")}

	if got := FilterIPv4(ips); len(got) != 2 {
		t.Errorf("FilterIPv4() = %v, want 2 addresses", got)
	}
	if got := FilterIPv6(ips); len(got) != 1 || got[0].String() != "fd00::1" {
		t.Errorf("FilterIPv6() = %v, want [fd00::1]", got)
	}
}
