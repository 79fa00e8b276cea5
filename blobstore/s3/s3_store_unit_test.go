package s3

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort"
	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/term"
)

func TestStore_OpenMissing(t *testing.T) {
	store := NewStore(newFakeS3(), "bucket", WithPrefix("sorts"))

	_, err := store.Open(t.Context(), "CURRENT")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_PutAndRead(t *testing.T) {
	fake := newFakeS3()
	store := NewStore(fake, "bucket", WithPrefix("sorts/job"))
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("0123456789")))
	in := fake.meta["sorts/job/CURRENT"]
	require.NotNil(t, in)
	assert.Equal(t, crc32cBase64([]byte("0123456789")), aws.ToString(in.ChecksumCRC32C))
	assert.Equal(t, ContentType, aws.ToString(in.ContentType))

	b, err := store.Open(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Size())

	p := make([]byte, 4)
	n, err := b.ReadAt(ctx, p, 2)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(p[:n]))

	n, err = b.ReadAt(ctx, p, 8)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(p[:n]))

	_, err = b.ReadAt(ctx, p, 10)
	require.ErrorIs(t, err, io.EOF)

	rc, err := b.ReadRange(ctx, 7, 100)
	require.NoError(t, err)
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "789", string(rest))

	gets := fake.gets
	rc, err = b.ReadRange(ctx, 10, 5)
	require.NoError(t, err)
	rest, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, gets, fake.gets, "empty ranges need no request")

	got, err := blobstore.ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestStore_PutWithoutChecksum(t *testing.T) {
	fake := newFakeS3()
	cfg := DefaultUploadConfig()
	cfg.Checksum = false
	store := NewStore(fake, "bucket", WithUploadConfig(cfg))

	require.NoError(t, store.Put(t.Context(), "m", []byte("x")))
	assert.Nil(t, fake.meta["m"].ChecksumCRC32C)
}

func TestStore_CreateCloseAndAbort(t *testing.T) {
	fake := newFakeS3()
	store := NewStore(fake, "bucket", WithPrefix("p"))
	ctx := t.Context()

	w, err := store.Create(ctx, "data/1")
	require.NoError(t, err)
	_, err = w.Write([]byte("patch bytes"))
	require.NoError(t, err)
	assert.False(t, fake.has("p/data/1"))
	require.NoError(t, w.Close())
	assert.True(t, fake.has("p/data/1"))
	require.ErrorIs(t, w.Close(), blobstore.ErrClosedBlob)

	w, err = store.Create(ctx, "data/2")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, blobstore.Abort(w))
	assert.False(t, fake.has("p/data/2"))
	_, err = w.Write([]byte("more"))
	require.ErrorIs(t, err, blobstore.ErrClosedBlob)

	ctx2, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Create(ctx2, "data/3")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_ListAndDelete(t *testing.T) {
	fake := newFakeS3()
	store := NewStore(fake, "bucket", WithPrefix("p/"))
	ctx := t.Context()

	for _, name := range []string{"manifests/3", "manifests/1", "data/1", "manifests/2", "CURRENT"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}
	require.NoError(t, NewStore(fake, "bucket").Put(ctx, "px/other", nil))

	names, err := store.List(ctx, "manifests/")
	require.NoError(t, err)
	assert.Equal(t, []string{"manifests/1", "manifests/2", "manifests/3"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT", "data/1", "manifests/1", "manifests/2", "manifests/3"}, names)

	require.NoError(t, store.Delete(ctx, "manifests/2"))
	require.NoError(t, store.Delete(ctx, "manifests/2"))
	names, err = store.List(ctx, "manifests/")
	require.NoError(t, err)
	assert.Equal(t, []string{"manifests/1", "manifests/3"}, names)
}

func TestCRC32CBase64(t *testing.T) {
	// CRC32C("123456789") = 0xE3069283
	assert.Equal(t, "4waSgw==", crc32cBase64([]byte("123456789")))
}

func TestStore_CheckpointResume(t *testing.T) {
	fake := newFakeS3()
	resumeFromCheckpoint(t, NewStore(fake, "bucket", WithPrefix("sorts/job-1")))
	assert.True(t, fake.has("sorts/job-1/CURRENT"))
}

// resumeFromCheckpoint checkpoints a partial sort into store, resumes it
// in a new sorter and checks the merged output.
func resumeFromCheckpoint(t *testing.T, store blobstore.BlobStore) {
	t.Helper()
	ctx := t.Context()
	opts := []termsort.Option{
		termsort.WithSmallBuffer(60, 12, 10),
		termsort.WithLargeBuffer(130, 2),
		termsort.WithMaxFilePatches(3),
		termsort.WithMaxTermSize(16),
		termsort.WithTempDir(t.TempDir()),
		termsort.WithCheckpointStore(store),
	}

	s, err := termsort.New(ctx, opts...)
	require.NoError(t, err)
	for i := range 40 {
		require.NoError(t, s.Push(ctx, term.New([]term.Cell{term.Cell(i % 7)}, 1)))
	}
	info, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)
	assert.Positive(t, info.Bytes)
	require.NoError(t, s.Close())

	r, err := termsort.Resume(ctx, opts...)
	require.NoError(t, err)
	defer r.Close()
	versions, err := r.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, versions)
	require.NoError(t, r.Push(ctx, term.New([]term.Cell{0}, 1)))

	stream, err := r.Finish(ctx)
	require.NoError(t, err)
	var got []string
	for tm, err := range stream.All() {
		require.NoError(t, err)
		got = append(got, tm.String())
	}
	assert.Equal(t, []string{"0 : +7", "1 : +6", "2 : +6", "3 : +6", "4 : +6", "5 : +5", "6 : +5"}, got)
}
