package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObjectStream(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// ListObjects lists the objects directly under dir, or the single object
	// dir names.
	ListObjects(ctx context.Context, bucket, dir string) ([]Object, error)
}
