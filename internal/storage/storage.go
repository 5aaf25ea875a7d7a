package storage

import (
	"context"
	"io"
)

// Storage is the durable object-storage contract. The real provider lives
// outside this repo; orders only ever see the returned public URL.
type Storage interface {
	// Upload stores a file and returns its key and public URL.
	Upload(ctx context.Context, input *UploadInput) (*UploadResult, error)
}

// UploadInput holds the parameters for uploading a file.
type UploadInput struct {
	Key         string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadResult holds the result of a successful upload.
type UploadResult struct {
	Key string
	URL string
}
