// Package types defines the core data types for the time-series store.
//
// Two kinds of data flow through the store:
//
//   - Point: a raw persisted sample, one per accepted CCM reading. Points
//     live in the raw namespace and are append-only.
//   - AggregatePoint: a derived day/quadrant mean in the aggregate
//     namespace, produced by the backfill scheduler and linked back to the
//     originating signal key.
//
// The canonical signal key is the sole join point between live policy,
// stored points and aggregates.
package types
