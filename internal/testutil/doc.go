// Package testutil provides deterministic helpers shared by package tests:
// a stepping wall clock, a fixed run ID generator and a service runner
// that records commands instead of executing them.
package testutil
