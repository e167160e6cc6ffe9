package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/flashio/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient keeps objects in memory. GetObject is not supported because
// *minio.Object cannot be built outside the client.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte)}
}

func (c *fakeClient) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (c *fakeClient) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not supported")
}

func (c *fakeClient) PutObject(_ context.Context, _, key string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = data
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func (c *fakeClient) RemoveObject(_ context.Context, _, key string, _ minio.RemoveObjectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[key]; !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	delete(c.objects, key)
	return nil
}

func (c *fakeClient) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	c.mu.Lock()
	var keys []string
	for k := range c.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	sort.Strings(keys)

	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func TestStore_Fake(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := NewStore(client, "firmware", "images/")

	require.NoError(t, store.Put(ctx, "v1/MANIFEST", []byte("{}")))
	require.NoError(t, store.Put(ctx, "v1/chunk-00000", []byte("data")))
	require.NoError(t, store.Put(ctx, "v10/MANIFEST", []byte("{}")))
	assert.Contains(t, client.objects, "images/v1/MANIFEST")

	b, err := store.Open(ctx, "v1/chunk-00000")
	require.NoError(t, err)
	assert.Equal(t, int64(4), b.Size())

	_, err = store.Open(ctx, "v2/MANIFEST")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	names, err := store.List(ctx, "v1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1/MANIFEST", "v1/chunk-00000"}, names)

	require.NoError(t, store.Delete(ctx, "v1/MANIFEST"))
	require.NoError(t, store.Delete(ctx, "v1/MANIFEST"))
	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1/chunk-00000", "v10/MANIFEST"}, names)
}

// TestStore_Integration requires a running MinIO instance at MINIO_ENDPOINT.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	bucket := "test-flashio"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")
	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.bin", data))

	got, err := blobstore.Get(ctx, store, "test.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	blob, err := store.Open(ctx, "test.bin")
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 12)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "world", string(buf[:n]))

	require.NoError(t, store.Delete(ctx, "test.bin"))
	_, err = store.Open(ctx, "test.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
