// Package errors provides standardized error handling patterns for CubeStream
// components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). Cancellation is tracked separately
// with IsCancelled because a cancelled computation job is a normal terminal
// state for this server, not a failure.
//
// The classification system integrates with Go's standard error handling
// patterns, supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if _, ok := s.files[id]; !ok {
//	    return errors.ErrFileNotFound
//	}
//
// Wrap errors with context for debugging:
//
//	if err := store.Save(ctx, snapshot); err != nil {
//	    return errors.Wrap(err, "SessionStore", "Save", "persist snapshot")
//	}
//
// Check classification for retry or reporting decisions:
//
//	if err := op(); err != nil {
//	    switch {
//	    case errors.IsCancelled(err):
//	        // normal terminal state, report cancel=true
//	    case errors.IsInvalid(err):
//	        // reject the request, do not retry
//	    case errors.IsTransient(err):
//	        // retry with backoff
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification.
//
// # Standard Error Variables
//
// Pre-defined error variables cover the common conditions, organized by
// category:
//
//   - Session lifecycle: ErrSessionClosed, ErrSessionNotFound, ErrAlreadyRegistered
//   - File and region state: ErrFileNotFound, ErrRegionNotFound, ErrInvalidGeometry
//   - Computation jobs: ErrJobCancelled, ErrJobSuperseded, ErrJobNotFound
//   - Connection and transport: ErrConnectionLost, ErrFrameTooShort, ErrQueueFull
//   - Storage: ErrStorageUnavailable, ErrSnapshotNotFound, ErrKeyNotFound
//
// Use these variables instead of ad hoc error strings so callers can match
// with errors.Is.
//
// # Retry Configuration
//
// RetryConfig carries exponential backoff settings and converts to the retry
// framework's Config via ToRetryConfig. ShouldRetry consults the error class
// so invalid requests are never retried.
package errors
