// Package streammux serializes a session's outbound messages onto its
// single connection. Producers enqueue frames into per-category queues
// and one writer goroutine drains them, so responses, bulk data, and
// progress reports never interleave destructively.
//
// Three categories exist. Control frames (acks, terminal responses) are
// never dropped and drain first. Data frames (tiles, profiles,
// histograms) are never dropped; a full queue applies backpressure to
// the producer. Progress frames ride a small drop-oldest queue, so a
// slow client sees fewer intermediate progress reports rather than a
// growing backlog.
//
// Within a category, frames leave in the order they were enqueued. Tile
// batches are bracketed: EnqueueTileBatch writes a start sync marker,
// the tiles, and an end sync marker carrying the tile count, all under
// one sync id, and because a category is drained FIFO the bracket stays
// intact on the wire.
package streammux
