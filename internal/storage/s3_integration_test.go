//go:build integration

package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_Integration(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "snapshots",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx), "existing bucket is fine")

	body := "{\"chunk_id\":\"n-1_chunk_1\"}\n"
	require.NoError(t, client.PutObject(ctx, "daily/2024-01-15.jsonl", strings.NewReader(body), int64(len(body)), "application/x-ndjson"))
	require.NoError(t, client.PutObject(ctx, "weekly/2024-w03.jsonl", strings.NewReader(body), int64(len(body)), "application/x-ndjson"))

	t.Run("get", func(t *testing.T) {
		r, err := client.GetObject(ctx, "daily/2024-01-15.jsonl")
		require.NoError(t, err)
		defer r.Close()
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, body, string(got))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := client.GetObject(ctx, "daily/absent.jsonl")
		assert.True(t, errors.Is(err, ErrObjectNotFound))
	})

	t.Run("list by prefix", func(t *testing.T) {
		objects, err := client.ListObjects(ctx, "daily/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "daily/2024-01-15.jsonl", objects[0].Key)
		assert.Equal(t, int64(len(body)), objects[0].Size)

		all, err := client.ListObjects(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, client.DeleteObject(ctx, "weekly/2024-w03.jsonl"))
		objects, err := client.ListObjects(ctx, "weekly/")
		require.NoError(t, err)
		assert.Empty(t, objects)
	})
}
