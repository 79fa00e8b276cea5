// Package filehandle manages the scratch files that hold patches.
//
// A [Handle] is owned by a single sort. Writes go through a write-back cache
// and the backing file is only created once the cache overflows, so small
// sorts never touch the disk. A [Shared] file is written by many workers
// through [View]s: each view buffers a whole patch privately and reserves a
// contiguous range under the shared cursor lock before writing it with a
// positional write.
//
// Both implement [Storage]. Patches are written through a [Region], which is
// either committed (the patch becomes addressable) or aborted (the bytes are
// discarded and the space is reused).
package filehandle
