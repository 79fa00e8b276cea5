package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/internal/hash"
)

// ContentType is set on every object the store writes.
const ContentType = "application/x-termsort-checkpoint"

// UploadConfig tunes streaming uploads of checkpoint data blobs.
type UploadConfig struct {
	// PartSize is the multipart part size in bytes. Default 8 MiB.
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel. Default 4.
	Concurrency int
	// Checksum requests CRC32C validation by S3. Default true.
	Checksum bool
}

// DefaultUploadConfig returns the defaults listed on UploadConfig.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:    8 << 20,
		Concurrency: 4,
		Checksum:    true,
	}
}

func (c UploadConfig) uploader(client Client) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if c.PartSize >= manager.MinUploadPartSize {
			u.PartSize = c.PartSize
		}
		if c.Concurrency > 0 {
			u.Concurrency = c.Concurrency
		}
	})
}

// crc32cBase64 encodes the checksum the way the x-amz-checksum-crc32c header
// expects it.
func crc32cBase64(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))

	return base64.StdEncoding.EncodeToString(b[:])
}

func putObject(ctx context.Context, client Client, bucket, key string, data []byte, checksum bool) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType),
	}
	if checksum {
		in.ChecksumCRC32C = aws.String(crc32cBase64(data))
	}
	_, err := client.PutObject(ctx, in)

	return err
}

// upload streams writes into a multipart upload. The object appears when
// Close returns nil. Abort cancels the upload; the uploader then removes
// the parts sent so far.
type upload struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error
	closed bool
}

func startUpload(ctx context.Context, u *manager.Uploader, bucket, key string, checksum bool) *upload {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	up := &upload{pw: pw, cancel: cancel, done: make(chan error, 1)}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        pr,
		ContentType: aws.String(ContentType),
	}
	if checksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	go func() {
		_, err := u.Upload(ctx, in)
		_ = pr.CloseWithError(err)
		up.done <- err
	}()

	return up
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, blobstore.ErrClosedBlob
	}

	return u.pw.Write(p)
}

// Sync is a no-op; data is committed by Close.
func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	if u.closed {
		return blobstore.ErrClosedBlob
	}
	u.closed = true
	_ = u.pw.Close()
	err := <-u.done
	u.cancel()

	return err
}

func (u *upload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.cancel()
	_ = u.pw.CloseWithError(context.Canceled)
	<-u.done

	return nil
}
