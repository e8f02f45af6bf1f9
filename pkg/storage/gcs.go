package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StorageGCS archives into a Google Cloud Storage bucket.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS, or the metadata server).
type StorageGCS struct {
	bucketName string
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	isPublic   bool
	log        logs.Log
}

func NewStorageGCS(ctx context.Context, log logs.Log, bucketName string, isPublic bool) (*StorageGCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Failed to create GCS client for bucket %v: %w", bucketName, err)
	}
	return &StorageGCS{
		bucketName: bucketName,
		client:     client,
		bucket:     client.Bucket(bucketName),
		isPublic:   isPublic,
		log:        log,
	}, nil
}

// Put uploads content. GCS only makes an object visible once the writer is closed, so a failed upload leaves the old object in place.
func (s *StorageGCS) Put(ctx context.Context, name string, content io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType(name)
	// Re-predicting overwrites artifacts, so caches must revalidate
	w.CacheControl = "no-cache"
	if _, err := io.Copy(w, content); err != nil {
		// Cancelling the context before Close aborts the upload
		cancel()
		w.Close()
		return fmt.Errorf("Upload of gs://%v/%v failed: %w", s.bucketName, name, err)
	}
	return w.Close()
}

func (s *StorageGCS) Delete(ctx context.Context, name string) error {
	err := s.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	if err == nil {
		s.log.Infof("Deleted gs://%v/%v", s.bucketName, name)
	}
	return err
}

func (s *StorageGCS) URL(name string) (string, error) {
	if !s.isPublic {
		return "", ErrNoPublicUrl
	}
	return "https://storage.googleapis.com/" + s.bucketName + "/" + name, nil
}

func (s *StorageGCS) Close() error {
	return s.client.Close()
}
