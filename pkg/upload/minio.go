package upload

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

// MinioUploader puts the artifact into an object storage bucket under
// recordings/{session_id}/recording.mp3.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

func NewMinioUploader(client *minio.Client, bucket string) *MinioUploader {
	return &MinioUploader{client: client, bucket: bucket}
}

func (u *MinioUploader) Upload(ctx context.Context, artifact []byte, meta Metadata) (*Result, error) {
	objectKey := path.Join("recordings", meta.SessionID, "recording.mp3")

	info, err := u.client.PutObject(ctx, u.bucket, objectKey,
		bytes.NewReader(artifact), int64(len(artifact)),
		minio.PutObjectOptions{
			ContentType: "audio/mpeg",
			UserMetadata: map[string]string{
				"title":  meta.Title,
				"source": meta.Source,
			},
		})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("object_key", objectKey).Msg("failed to upload artifact")
		return nil, fmt.Errorf("object upload: %w", err)
	}

	return &Result{Ref: objectKey, SizeBytes: info.Size}, nil
}
