// renderhints-client sends render hints for one subscriber context and prints
// the per-track results.
//
// Usage:
//
//	renderhints-client (-url URL | -tcp ADDR | -offer URL | -mdns) [options]
//
// Options:
//
//	-url        WebSocket endpoint
//	-tcp        Framed TCP endpoint
//	-offer      WebRTC offer endpoint
//	-mdns       Discover the endpoint over mDNS
//	-scheme     Endpoint scheme when discovering (default: ws)
//	-subscriber Subscriber context id (default: generated)
//	-hint       Track hint sid[:on|off][:WxH], repeatable
//	-timeout    Overall timeout (default: 10s)
//	-log        Log level (default: info)
//
// Example:
//
//	renderhints-client -url ws://localhost:7880/hints -hint TR_cam:on:1280x720 -hint TR_screen:off
package main

import (
	"fmt"
	"log"
	"sort"

	"github.com/backkem/renderhints/examples/client"
	"github.com/backkem/renderhints/examples/common"
)

func main() {
	opts := common.ParseClientFlags()

	loggerFactory, err := common.NewLoggerFactory(opts.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	c, err := client.New(client.Config{
		Options:       opts,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	runErr := common.RunUntilSignal(c)

	results := c.Results()
	sids := make([]string, 0, len(results))
	for sid := range results {
		sids = append(sids, sid)
	}
	sort.Strings(sids)

	fmt.Printf("Subscriber: %s\n", c.Subscriber())
	for _, sid := range sids {
		fmt.Printf("  %-20s %s\n", sid, results[sid].Result)
	}

	if runErr != nil {
		log.Fatalf("Client error: %v", runErr)
	}
}
