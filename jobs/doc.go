// Package jobs runs the server's long computations: cube histograms,
// moment maps, position-velocity images, and spectral profiles. Each job
// is identified by a (id, kind) key and executes on a shared worker pool
// so the dispatch path never blocks on computation.
//
// The central rule is cancel-then-start: submitting a job for a key that
// already has one running cancels the old job before the new one is
// admitted. Every job carries a generation token captured at submission;
// a job checks its token is still current before emitting any output, so
// a superseded job can finish its current step but its results never
// reach the client. Cancellation is a normal terminal outcome, distinct
// from failure, and is reported as such.
package jobs
