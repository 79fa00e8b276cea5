// Package dispatch runs a sort on several workers.
//
// The Dispatcher hands ranges of input terms (buckets) to workers and lets
// an idle worker steal the unprocessed half of a busy worker's bucket. Each
// worker feeds its own engine.SortContext and publishes the sorted result
// through its block of a SortBlock, from which the master merges all
// workers into the final stream.
package dispatch
