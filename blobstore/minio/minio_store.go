package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/termsort/blobstore"
)

// ContentType is set on every object the store writes.
const ContentType = "application/x-termsort-checkpoint"

// DefaultPartSize bounds the memory a streaming upload buffers per part.
const DefaultPartSize = 16 << 20

// Store keeps checkpoint blobs in a MinIO or S3-compatible bucket.
type Store struct {
	client   *minio.Client
	bucket   string
	prefix   string
	partSize uint64
}

var _ blobstore.BlobStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix places all blobs below prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithPartSize sets the multipart part size of streaming uploads.
func WithPartSize(bytes uint64) Option {
	return func(s *Store) { s.partSize = bytes }
}

// NewStore returns a Store for bucket.
func NewStore(client *minio.Client, bucket string, optFns ...Option) *Store {
	s := &Store{client: client, bucket: bucket, partSize: DefaultPartSize}
	for _, fn := range optFns {
		fn(s)
	}

	return s
}

func (s *Store) key(name string) string { return blobstore.ObjectKey(s.prefix, name) }

func (s *Store) putOptions() minio.PutObjectOptions {
	return minio.PutObjectOptions{ContentType: ContentType, PartSize: s.partSize}
}

func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}

	return &object{client: s.client, bucket: s.bucket, key: key, size: info.Size}, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), s.putOptions())
	return err
}

// Create streams into an upload of unknown size. The object appears when
// Close returns nil.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	up := &upload{pw: pw, cancel: cancel, done: make(chan error, 1)}
	key, opts := s.key(name), s.putOptions()
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, key, pr, -1, opts)
		_ = pr.CloseWithError(err)
		up.done <- err
	}()

	return up, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := notFound(s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{}))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}

	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if name, ok := blobstore.BlobName(s.prefix, obj.Key); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	return names, nil
}

// notFound maps missing-object responses to blobstore.ErrNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	}

	return err
}

// object is a blob served by ranged GET requests.
type object struct {
	client *minio.Client
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
	r, err := o.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n, err := io.ReadFull(r, p[:end-off])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off == o.size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end, err := blobstore.ClampRange(o.size, off, length)
	if err != nil {
		return nil, err
	}
	if end == off {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return o.get(ctx, off, end)
}

func (o *object) get(ctx context.Context, off, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end-1); err != nil {
		return nil, err
	}
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, opts)
	if err != nil {
		return nil, notFound(err)
	}

	return obj, nil
}

// upload is the writing end of a streaming PutObject.
type upload struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, blobstore.ErrClosedBlob
	}

	return u.pw.Write(p)
}

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

// Abort cancels the upload; MinIO discards the parts sent so far.
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
