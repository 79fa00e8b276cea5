// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("sorts/job-42/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	sorter, err := termsort.New(ctx, termsort.WithCheckpointStore(store))
//
// # Features
//
//   - Range reads for partial fetches of patch archives
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix so several sorts can share one bucket
package s3
