// Package animation drives channel playback with credit-based
// backpressure. Starting an animation grants the server a window of
// flow-control credits; it pushes one frame per credit without waiting
// and then advances only as the client returns credits by acknowledging
// received frames. A slow client therefore stalls its own playback
// instead of flooding the connection.
//
// At most one animation runs per file. Stopping is cooperative: frames
// already committed to the outbound path may still reach the client,
// but no frame advance happens after the stop is observed. Closing a
// file silently aborts its animation.
package animation
