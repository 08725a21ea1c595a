package adapter

import (
	"context"
	"errors"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound is returned by Storage.Get when the key does not exist
var ErrObjectNotFound = goerr.New("object not found")

// Storage archives conversation transcripts as objects
type Storage interface {
	// Put returns a writer that stores the object under key on Close
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// CloudStorage implements Storage on a Cloud Storage bucket
type CloudStorage struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

type StorageOption func(*CloudStorage)

// WithStoragePrefix places every object below prefix in the bucket
func WithStoragePrefix(prefix string) StorageOption {
	return func(s *CloudStorage) {
		s.prefix = prefix
	}
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (*CloudStorage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &CloudStorage{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *CloudStorage) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *CloudStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.objectName(key))
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *CloudStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.objectName(key))
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrObjectNotFound, "transcript not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}

	return reader, nil
}

// Close releases the underlying client
func (s *CloudStorage) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}
