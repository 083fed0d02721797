// Package discovery advertises and resolves render hint endpoints over
// DNS-SD (mDNS) using grandcat/zeroconf.
//
// Endpoints register as _renderhints._tcp in the local. domain. The TXT
// record carries the protocol version ("v"), the transport scheme ("tr",
// "ws" or "tcp") and for WebSocket endpoints the URL path ("path").
package discovery
