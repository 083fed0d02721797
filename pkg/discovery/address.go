package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference sorts IP addresses by how likely a dial succeeds.
// Priority order (highest to lowest):
//  1. IPv4 addresses, private or public
//  2. IPv6 global unicast
//  3. IPv6 unique local (fc00::/7)
//  4. IPv6 link-local (fe80::/10), which needs a zone to dial
//  5. Loopback
//
// The input is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99 // Invalid
	}

	if ip.IsLoopback() {
		return 80
	}
	if ip.IsMulticast() || ip.IsUnspecified() {
		return 90
	}

	if ip.To4() != nil {
		if ip.IsLinkLocalUnicast() {
			return 20
		}
		return 0
	}

	switch {
	case isUniqueLocal(ip):
		return 2
	case ip.IsGlobalUnicast():
		return 1
	case ip.IsLinkLocalUnicast():
		return 10
	}
	return 50
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
// ULA range: fc00::/7 (fc00:: to fdff::)
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0]&0xfe == 0xfc
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// LocalInterfaces returns the up, non-loopback, multicast-capable interfaces
// of the host, suitable for mDNS advertising.
func LocalInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var result []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		result = append(result, iface)
	}
	return result, nil
}
