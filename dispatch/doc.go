// Package dispatch routes decoded frames to their handlers. One
// Dispatcher serves one connection: it owns the connection's session
// reference, job manager, animation controller, and outbound
// multiplexer, and runs handlers sequentially on the read loop.
//
// Handlers never compute on the dispatch path. Quick state mutations
// (open, set-region, set-cursor) answer inline; anything that touches
// more than one channel of pixel data is handed to the job manager and
// streams its progress and terminal response through the multiplexer
// while the read loop stays free to accept cancellations.
//
// Validation failures answer on the originating request with a failed
// ack. Failures discovered outside a request's own handling path are
// pushed on the error stream instead. Either way every failure is
// visible to the client; nothing is dropped silently.
package dispatch
