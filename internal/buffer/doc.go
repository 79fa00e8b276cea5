// Package buffer implements the two in-memory stages of a sort.
//
// The [Collector] (small buffer) accepts single terms, keeps a pointer table
// sorted by the comparator and merges equal keys as they arrive. When it is
// full it yields a sorted [Run]. The [Manager] (large buffer) stores up to
// MaxPatches such runs back to back; the owner merges them into a file patch
// when the next run does not fit.
package buffer
