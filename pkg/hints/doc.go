// Package hints negotiates per-track rendering hints with a remote media
// server over an already established message channel.
//
// A Signaling instance keeps the locally desired state of every track
// (enabled flag and/or render dimension), remembers which tracks changed
// since they were last transmitted, and flushes those changes in batches.
// At most one render_hints request is outstanding at any time:
//
//	 SendTrackHint ──► dirty set ──► flush ──► Publish(render_hints)
//	                        ▲                        │
//	                        │                        ▼
//	                        └──── flush ◄──── render_hints reply
//
// # States
//
//	StateIdle           no request outstanding
//	StateAwaitingReply  one batch published, waiting for any render_hints reply
//
// Replies are not correlated by request id unless Config.StrictReplyMatching
// is set. Tracks marked dirty while a request is outstanding stay queued and
// go out in the next batch once the reply arrives.
//
// # Readiness
//
// The channel is acquired asynchronously by Setup. Until it is bound, hints
// accumulate locally. Once bound, the Ready channel is closed, Config.OnReady
// is called and the accumulated hints are flushed. Acquisition is attempted
// once; a failure leaves the instance inert for transmission.
//
// # Wire format
//
//	{"type":"render_hints","subscriber":{"id":7,"hints":[
//	    {"track_sid":"TR_a","enabled":true,"render_dimension":{"height":720,"width":1280}}]}}
//
// Replies carry one {"track_sid","result"} entry per hint, where result is
// "OK" or an error code such as "INVALID_RENDER_HINT".
package hints
