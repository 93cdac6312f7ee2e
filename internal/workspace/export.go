package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
)

// GCSExporter writes snapshots as JSON objects to a Cloud Storage bucket.
type GCSExporter struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

// NewGCSExporter creates an exporter writing under prefix in bucketName.
func NewGCSExporter(client *storage.Client, bucketName, prefix string) (*GCSExporter, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("NewGCSExporter: bucket name cannot be empty")
	}
	if prefix == "" {
		prefix = "snapshots"
	}
	return &GCSExporter{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Export uploads the snapshot. Objects are named by id and digest, so exporting
// the same snapshot twice is not an error.
func (e *GCSExporter) Export(ctx context.Context, snap Snapshot) (string, error) {
	objectName := ObjectName(e.prefix, snap)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot %d: %w", snap.ID, err)
	}

	err = gcp.SaveToGCSAtomically(ctx, e.bucket, objectName, "application/json", data)
	if err != nil && !errors.Is(err, gcp.ErrObjectExists) {
		return "", err
	}

	uri := fmt.Sprintf("gs://%s/%s", e.bucketName, objectName)
	slog.Info("Snapshot exported.", "snapshotId", snap.ID, "gcsUri", uri)
	return uri, nil
}

// ObjectName is the object path a snapshot is exported to.
func ObjectName(prefix string, snap Snapshot) string {
	digest := snap.Digest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	return fmt.Sprintf("%s/%05d-%s.json", prefix, snap.ID, digest)
}
