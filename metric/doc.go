// Package metric provides Prometheus-based metrics collection and an HTTP
// server for CubeStream monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (sessions, frames, computation jobs, stream queues, NATS
// health) and custom component-specific metrics. It includes an HTTP server
// exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with health checks (Server type)
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordSessionOpened()
//	coreMetrics.RecordFrameReceived("OPEN_FILE")
//	coreMetrics.RecordJobStarted("moment")
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Sessions: session_active, session_total
//   - Frames: frames_received_total, frames_sent_total, dispatch_duration_seconds
//   - Computation jobs: jobs_running, jobs_total, jobs_duration_seconds
//   - Streams: stream_queue_depth, stream_tiles_sent_total, animation_credits
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//   - Error tracking: errors_total
//
// All core metrics use the namespace "cubestream" with the subsystem naming
// above, for example cubestream_frames_received_total{event_type="..."}.
//
// # Component-Specific Metrics
//
// Components register custom metrics through the MetricsRegistrar interface:
//
//	connections := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Namespace: "cubestream",
//	    Subsystem: "gateway",
//	    Name:      "connections_active",
//	    Help:      "Number of active websocket connections",
//	})
//	err := registry.RegisterGauge("gateway", "connections_active", connections)
//
// Registration methods return errors for duplicate registration and
// Prometheus-level conflicts. Unregister removes a metric, which matters for
// components that stop and restart.
//
// # Thread Safety
//
// All registry operations are thread-safe. Registration methods use mutex
// protection; metric recording is lock-free per the Prometheus client
// guarantees.
package metric
