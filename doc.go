// Package termsort sorts streams of algebraic terms under a canonical key
// order, combining terms with equal keys and dropping those whose
// coefficients cancel.
//
// Terms are collected in a small in-memory buffer, promoted as sorted runs
// into a large buffer, and spilled as compressed patches to scratch files
// once memory is exhausted. Patches are merged back in stages bounded by the
// merge fan-in, and the final merge streams the result to the caller.
//
// # Quick Start
//
//	ctx := context.Background()
//	sorter, _ := termsort.New(ctx)
//	defer sorter.Close()
//
//	_ = sorter.Push(ctx, term.MustParse("1 : 3"))
//	_ = sorter.Push(ctx, term.MustParse("2 : 1"))
//	_ = sorter.Push(ctx, term.MustParse("1 : -3"))
//
//	out, _ := sorter.Finish(ctx)
//	for t, err := range out.All() {
//	    fmt.Println(t, err) // 2 : +1
//	}
//
// # Spilling and Compression
//
// Buffer sizes follow the sort kind (WithKind) and can be tuned one by one.
// Patches are written through an optional codec:
//
//	sorter, _ := termsort.New(ctx,
//	    termsort.WithTempDir("/fast/nvme"),
//	    termsort.WithCompression(termsort.CompressionZSTD, 0),
//	)
//
// # Parallel Sorts
//
// A ParallelSorter hands ranges of input terms to workers, each sorting with
// its own buffers. An idle worker steals half of the remaining range of a
// busy one. The worker outputs are merged when the stream is read and equal
// the output of a single Sorter.
//
//	ps, _ := termsort.NewParallel(ctx, termsort.WithWorkers(4),
//	    termsort.WithGenerator(expand))
//
// # Checkpoints
//
// With a checkpoint store the spilled state of a run can be saved and a run
// resumed after a restart:
//
//	sorter, _ := termsort.New(ctx, termsort.WithCheckpointStore(store))
//	info, _ := sorter.Checkpoint(ctx)
//	...
//	sorter, _ = termsort.Resume(ctx, termsort.WithCheckpointStore(store))
package termsort
