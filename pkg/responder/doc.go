// Package responder implements the media server side of render hint
// signalling.
//
// A Responder listens on a transport.Channel, decodes each render_hints
// request, validates every hint and answers with a reply carrying the
// request id and one result per track. It backs the demo server and the
// end-to-end tests of package hints.
//
// Replies can be delayed (Config.Delay) or held back entirely (Hold and
// Release) to exercise the single-outstanding-request behaviour of a
// subscriber.
package responder
