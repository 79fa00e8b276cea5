package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/termsort/blobstore"
)

// object is a blob served by ranged GET requests.
type object struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (o *object) Size() int64 { return o.size }

func (o *object) Close() error { return nil }

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	end, err := blobstore.ClampRange(o.size, off, int64(len(p)))
	if err != nil || end == off {
		return 0, err
	}
	body, err := o.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	want := int(end - off)
	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, fmt.Errorf("s3: read %s at %d: %w", o.key, off, err)
	}
	if want < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off == o.size {
		return io.NopCloser(eofReader{}), nil
	}
	end, err := blobstore.ClampRange(o.size, off, length)
	if err != nil {
		return nil, err
	}
	if end == off {
		return io.NopCloser(eofReader{}), nil
	}

	return o.get(ctx, off, end)
}

func (o *object) get(ctx context.Context, off, end int64) (io.ReadCloser, error) {
	resp, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(rangeHeader(off, end)),
	})
	if err != nil {
		return nil, notFound(err)
	}

	return resp.Body, nil
}

// rangeHeader formats the inclusive HTTP range of [off, end).
func rangeHeader(off, end int64) string {
	return fmt.Sprintf("bytes=%d-%d", off, end-1)
}

// notFound maps the S3 missing-object errors to blobstore.ErrNotFound.
func notFound(err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return blobstore.ErrNotFound
	}

	return err
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
