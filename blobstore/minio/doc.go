// Package minio stores sort checkpoints in a MinIO bucket or any other
// S3-compatible service reachable through minio-go.
//
// Every checkpoint version becomes two objects under the store prefix, the
// manifest and the patch archive, plus the CURRENT pointer that is rewritten
// last:
//
//	<prefix>/MANIFEST-000003.bin
//	<prefix>/PATCHES-000003.bin
//	<prefix>/CURRENT
//
// Patch archives are streamed into PutObject with an unknown length, so the
// part size bounds the memory an upload holds. Aborting a checkpoint cancels
// the upload and nothing is published.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil {
//	    return err
//	}
//	store := minioblob.NewStore(client, "sorts",
//	    minioblob.WithPrefix("job-7/"),
//	    minioblob.WithPartSize(32<<20),
//	)
//	sorter, err := termsort.New(ctx, termsort.WithCheckpointStore(store))
package minio
