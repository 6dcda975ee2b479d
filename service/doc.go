// Package service runs simulation sessions: the write path through the
// journal into the matching engine, recovery from snapshot and journal,
// and the runner that walks a fair-price feed.
//
// It is decoupled from any transport; cmd/mmsim drives it from the CLI.
package service
