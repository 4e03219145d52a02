// Package objectstore implements the Object-Store Uploader (spec
// component G): writes numbered chunk blobs and a final manifest under a
// per-job prefix in Google Cloud Storage.
package objectstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// Uploader writes job output to a single GCS bucket.
type Uploader struct {
	client *storage.Client
	bucket string
}

// New wraps an already-configured *storage.Client.
func New(client *storage.Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// PrefixFor returns the per-job object prefix.
func PrefixFor(jobID string) string { return fmt.Sprintf("jobs/%s/", jobID) }

// ChunkName returns the blob name for chunk index idx under prefix.
func ChunkName(prefix string, idx int) string {
	return fmt.Sprintf("%spart-%05d.csv.gz", prefix, idx)
}

// UploadChunk writes one gzipped CSV chunk blob.
func (u *Uploader) UploadChunk(ctx context.Context, prefix string, idx int, data []byte) (uri string, err error) {
	name := ChunkName(prefix, idx)
	if err := u.upload(ctx, name, data, "application/gzip"); err != nil {
		return "", err
	}
	return u.uri(name), nil
}

// UploadManifest writes the job's manifest.json.
func (u *Uploader) UploadManifest(ctx context.Context, prefix string, jsonBytes []byte) (uri string, err error) {
	name := prefix + "manifest.json"
	if err := u.upload(ctx, name, jsonBytes, "application/json"); err != nil {
		return "", err
	}
	return u.uri(name), nil
}

func (u *Uploader) upload(ctx context.Context, name string, data []byte, contentType string) error {
	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Size = int64(len(data))
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (u *Uploader) uri(name string) string {
	return fmt.Sprintf("gs://%s/%s", u.bucket, name)
}

// HealthPing implements health.HealthPinger by checking bucket metadata
// reachability.
func (u *Uploader) HealthPing(ctx context.Context) error {
	_, err := u.client.Bucket(u.bucket).Attrs(ctx)
	return err
}

