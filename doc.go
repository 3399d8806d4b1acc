// Package cubestream implements a session-oriented streaming server for
// astronomical image cubes. Viewer clients connect over a websocket, open
// cubes, and receive tiled raster data, histograms, spectral profiles,
// contours, and the results of long-running cube computations (moment
// maps, position-velocity cuts, Gaussian fitting) as framed binary
// messages.
//
// # Architecture
//
// Each websocket connection owns an isolated session stack:
//
//	┌─────────────────────────────────────┐
//	│        gateway/ws                   │  Listener, read loop,
//	│  (one goroutine per connection)     │  keepalive, teardown
//	└─────────────────────────────────────┘
//	           ↓ frames
//	┌─────────────────────────────────────┐
//	│          dispatch                   │  Event routing, request
//	│  (one dispatcher per session)       │  validation, acks
//	└─────────────────────────────────────┘
//	      ↓ state            ↓ compute
//	┌──────────────┐   ┌──────────────────┐
//	│   session    │   │      jobs        │  Cancellable workers,
//	│ files/regions│   │  (supersession)  │  progress reporting
//	└──────────────┘   └──────────────────┘
//	           ↓ outbound
//	┌─────────────────────────────────────┐
//	│         streammux                   │  Priority queues, single
//	│  (control > data > progress)        │  writer per connection
//	└─────────────────────────────────────┘
//
// Control responses always outrank bulk data on the wire, and progress
// updates are dropped oldest-first under pressure so a slow client never
// stalls a computation.
//
// # Packages
//
// Protocol and session:
//   - message: wire frames, event types, and payload structs
//   - dispatch: per-session request routing and response streaming
//   - session: open files, regions, and resumable snapshots
//   - cube: pixel data access, histograms, moments, PV cuts, fitting
//
// Streaming and flow control:
//   - streammux: prioritized outbound frame multiplexer
//   - animation: credit-based playback flow control
//   - jobs: cancellable computation pool with per-key supersession
//
// Infrastructure:
//   - gateway/ws: websocket listener and connection lifecycle
//   - sessionstore: session snapshot persistence (NATS KV or memory)
//   - natsclient: NATS connection management
//   - config: layered JSON configuration with env overrides
//   - metric: Prometheus metrics
//   - errors: structured error handling
//   - health: component health monitoring served at /healthz
//
// Utilities:
//   - pkg/buffer: ring buffer backing the progress queue
//   - pkg/cache: caching for synthetic channel slices
//   - pkg/retry: retry policies
//   - pkg/worker: worker pools
//   - pkg/security, pkg/tlsutil: TLS and certificate handling
//
// # Binary
//
// Build and run the server:
//
//	go build ./cmd/cubestream
//	./cubestream --config configs/server.json
//
// With no config file the compiled-in defaults apply: a plaintext
// websocket listener on :3002, metrics on :9090, and in-memory session
// snapshots.
package cubestream
