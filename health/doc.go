// Package health tracks the health of the server's long-lived components
// (websocket gateway, NATS connection, job workers) and aggregates them
// into the status the /healthz endpoint reports.
//
// Each component is tracked as a Status with one of three states:
// healthy, degraded, or unhealthy. A degraded component still serves
// requests with reduced capacity; an unhealthy one does not.
//
// Components report through a shared Monitor:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateHealthy("websocket", "accepting connections")
//	monitor.UpdateUnhealthy("nats", "connection lost")
//
//	system := monitor.AggregateHealth("cubestream")
//
// Aggregation is pessimistic: any unhealthy component makes the system
// unhealthy, otherwise any degraded component makes it degraded.
package health
