// Package storage is a blob store that annotated artifacts are archived into
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
)

var ErrNoPublicUrl = errors.New("Storage does not have public URLs")

// Storage is an abstraction of a blob store (eg GCS).
// Object names use forward slashes, eg "predictions/ba7816bf8f01cfea_predicted.jpg".
type Storage interface {
	// Put creates or replaces an object. Readers see either the old or the new content, never a mix.
	Put(ctx context.Context, name string, content io.Reader) error

	// Delete removes an object. Deleting an object that does not exist is not an error.
	Delete(ctx context.Context, name string) error

	// Returns ErrNoPublicUrl if the object cannot be fetched directly by clients
	URL(name string) (string, error)
}

// contentType guesses the MIME type of an object from its name, eg "video/mp4"
func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
