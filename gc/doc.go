// Package gc implements a pluggable garbage-collector backend for a
// managed-object runtime.
//
// This package contains:
//   - The Backend contract the host runtime allocates and writes through
//   - Side-table object metadata (Registry, ObjectInfo, RefList)
//   - A write-barrier recorder and a verification engine that audits
//     declared writes against the true object graph
//   - A stop-the-world tri-color mark-sweep collector driven off verified
//     snapshots, with finalizers, zombies, and weak slots
//   - An epsilon backend that allocates but never collects
//   - A mutator handshake and pacer for multi-threaded hosts
//
// The collector never interprets object payloads. Child references are
// obtained through the host's Runtime.MarkChildren callback, which calls
// back into Marker.Mark for every outgoing reference.
package gc
