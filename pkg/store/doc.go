// Package store provides the document store used for users, organizations and
// teams.
//
// Documents are schemaless field maps addressed by collection and id. Values are
// normalized through JSON, so numbers read back as float64 and structs as maps;
// use Document.Decode to read a typed record.
//
// Backends:
//
//   - MemoryStore: in-process, for tests and single-node development
//   - SQLStore: one documents table on PostgreSQL (JSONB) or SQLite (JSON1)
//   - RedisStore: one hash per document plus a set per collection, with Lua
//     scripts for every multi-key write
//
// Increment is atomic on every backend: a mutex, a single UPDATE ... RETURNING,
// or HINCRBY inside a script. Callers never read-modify-write counters.
//
// Wrap a backend with Instrument to record Prometheus metrics, OTel metrics and
// spans per call.
package store
