// Package storage wraps the S3-compatible object store used for audit
// exports.
package storage

import (
	"context"
	"io"

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/config"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(cfg config.ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{})
}

func (o *ObjectStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := o.client.PutObject(ctx, o.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("object_store_upload_failed", err, map[string]interface{}{
			"object_name": objectName,
			"size":        size,
			"bucket":      o.bucket,
		})
		return err
	}
	logger.Info("object_store_upload_success", map[string]interface{}{
		"object_name": objectName,
		"size":        size,
		"bucket":      o.bucket,
	})
	return nil
}
