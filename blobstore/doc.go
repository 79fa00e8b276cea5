// Package blobstore provides blob storage for sort checkpoints.
//
// A checkpoint consists of a patch archive and a manifest describing it; both
// are written as blobs. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, memory mapped reads, atomic rename on close
//   - MemoryStore: in-process, for tests
//   - minio.Store: MinIO and other S3 compatible services
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
