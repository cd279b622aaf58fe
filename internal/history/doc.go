// Package history records the service commands a suite run executes.
//
// Each run gets a time-ordered UUIDv7 ID. Every command the service
// runner finishes is appended under that run with a per-run sequence
// number, so listings come back in execution order regardless of
// wall-clock skew.
//
// # Database Configuration
//
//   - WAL mode: a `history` listing can read while a run writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package history
