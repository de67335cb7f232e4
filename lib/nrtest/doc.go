// Package nrtest provides sample replicated data structures and a reusable
// test/benchmark harness for exercising github.com/nrlog/nr.
//
// Core Functionality:
//   - Counter: a minimal replicated counter, useful for correctness tests
//     that care about exact operation ordering and nothing else.
//   - HashMap: a replicated string-keyed map with per-key expiry, modeled
//     as a single-shard version of a sharded key-value engine - NR already
//     serializes every mutation through one combiner, so the sharding that
//     engine uses to spread lock contention across goroutines buys nothing
//     here.
//   - A benchmark harness (RunBench) that runs an operation from many worker
//     goroutines for a fixed duration and reports throughput and latency
//     statistics.
//
// Nothing in this package is required to use github.com/nrlog/nr; it exists
// to give the engine something realistic to replicate in its own tests and
// in cmd/nr's benchmark subcommand.
package nrtest
