// Package store implements the public Bitcask engine: an embedded,
// append-only key-value store backed by segmented log files and a
// process-local in-memory index rebuilt on open.
//
// A Store is not a singleton; Open returns an independent instance per
// directory, and multiple Stores may be open in the same process so long as
// each points at a distinct directory (the directory lock enforces this
// across processes).
package store
