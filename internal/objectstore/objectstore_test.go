package objectstore

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestUploader(t *testing.T) *Uploader {
	t.Helper()
	server := fakestorage.NewServer([]fakestorage.Object{})
	t.Cleanup(server.Stop)

	client, err := storage.NewClient(context.Background(),
		option.WithHTTPClient(server.HTTPClient()),
		option.WithEndpoint(server.URL()+"/storage/v1/"),
	)
	require.NoError(t, err)

	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "test-bucket"})
	return New(client, "test-bucket")
}

func TestPrefixForAndChunkName(t *testing.T) {
	require.Equal(t, "jobs/job-1/", PrefixFor("job-1"))
	require.Equal(t, "jobs/job-1/part-00000.csv.gz", ChunkName(PrefixFor("job-1"), 0))
	require.Equal(t, "jobs/job-1/part-00012.csv.gz", ChunkName(PrefixFor("job-1"), 12))
}

func TestUploadChunkAndManifest(t *testing.T) {
	u := newTestUploader(t)
	ctx := context.Background()
	prefix := PrefixFor("job-1")

	uri, err := u.UploadChunk(ctx, prefix, 0, []byte("gzipped-bytes"))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/jobs/job-1/part-00000.csv.gz", uri)

	uri, err = u.UploadManifest(ctx, prefix, []byte(`{"row_count":1}`))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/jobs/job-1/manifest.json", uri)
}
