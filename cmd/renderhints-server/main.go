// renderhints-server answers render_hints requests from subscribers.
//
// Subscribers connect over WebSocket (/hints), WebRTC (SDP offer posted to
// /offer) or, when enabled, length-prefixed TCP. Metrics are served on
// /metrics.
//
// Usage:
//
//	renderhints-server [options]
//
// Options:
//
//	-listen     HTTP address (default: ":7880")
//	-tcp        Framed TCP address (default: disabled)
//	-mdns       Advertise over mDNS
//	-instance   mDNS instance name (default: generated)
//	-delay      Reply delay
//	-max        Largest accepted render dimension, WxH
//	-log        Log level (default: info)
//
// Example:
//
//	renderhints-server -listen :7880 -tcp :7881 -mdns -max 1920x1080
package main

import (
	"log"

	"github.com/backkem/renderhints/examples/common"
	"github.com/backkem/renderhints/examples/server"
)

func main() {
	opts := common.ParseServerFlags()

	loggerFactory, err := common.NewLoggerFactory(opts.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	srv, err := server.New(server.Config{
		Options:       opts,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := common.RunUntilSignal(srv); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
