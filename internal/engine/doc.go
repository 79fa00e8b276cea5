// Package engine implements the SortContext: one sort instance that owns a
// small buffer, a large buffer, a patch list and the scratch storage the
// patches live in.
//
// Terms pushed into a SortContext flow through three stages:
//
//	Push -> Collector (small buffer) -> Manager (large buffer) -> patches
//
// When the number of file patches reaches MaxFpatches a staged merge reduces
// them. Finish merges whatever is left, in memory and on file, into a lazy
// Stream; Materialize writes the same result to a restartable Output.
//
// A SortContext is owned by one goroutine. Contexts for concurrent workers
// share a scratch file through Config.Spill.
package engine
