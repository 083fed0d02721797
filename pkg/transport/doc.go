// Package transport defines the channel a render hint signaller rides on and
// provides concrete implementations of it.
//
// The contract is deliberately small: an Acquirer resolves a Transport for a
// subscriber context, a Transport of KindData hands out a Channel, and a
// Channel can Publish a message and deliver inbound messages to a handler.
//
// Implementations:
//
//   - DataChannel: a pion/webrtc data channel (text messages). DialWebRTC
//     and OfferHandler negotiate one by posting an SDP offer over HTTP.
//   - WebSocket: a gorilla/websocket connection (text frames).
//   - Stream: a TCP connection with 4-byte little-endian length prefixes.
//   - Pipe: an in-memory pair built on pion/transport's test.Bridge, with
//     network condition simulation and publish fault injection for tests.
package transport
