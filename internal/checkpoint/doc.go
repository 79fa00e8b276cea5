// Package checkpoint persists the patch list of an interrupted sort to a
// blobstore.BlobStore so the sort can be resumed elsewhere.
//
// # Layout
//
// A checkpoint with version N consists of three blobs:
//
//	PATCHES-00000N.bin   stored patch bytes, concatenated
//	MANIFEST-00000N.bin  binary manifest describing the patches
//	CURRENT              name of the latest manifest
//
// CURRENT is written last, so a reader either sees the previous checkpoint
// or the complete new one.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x54534f52 ("TSOR")
//	  Version  (4 bytes) - Format version (currently 1)
//	  Checksum (4 bytes) - CRC32C of payload
//	  Length   (4 bytes) - Payload length in bytes
//
//	Payload:
//	  ID          (8 bytes)
//	  CreatedAt   (8 bytes) - Unix nanoseconds
//	  Instance    (string)
//	  Kind        (4 bytes)
//	  Level       (4 bytes) - merge stage level reached
//	  Counters    (9 x 8 bytes)
//	  Data        (string)  - name of the patch data blob
//	  NumPatches  (4 bytes)
//	  Patches[]:  Offset, Size, Terms, Cells (8 bytes each), Codec (1 byte), Checksum (8 bytes)
//
// Strings are length-prefixed (2-byte length + bytes).
package checkpoint
