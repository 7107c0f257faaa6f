// Package objectstore abstracts the S3-compatible blob store holding document
// file bytes. The core only needs "store bytes, return a handle" and a hard
// delete; everything else about the files lives outside this system.
package objectstore

import (
	"context"
	"io"
)

// Handle identifies one stored object plus the metadata the document model
// denormalizes onto its versions.
type Handle struct {
	Key         string
	Filename    string
	ContentType string
	Size        int64
}

type Store interface {
	// Put stores the object under key and returns its handle.
	Put(ctx context.Context, key, filename, contentType string, size int64, r io.Reader) (Handle, error)
	// Delete removes the object permanently. Unlike tombstoning this is
	// irreversible; the soft-delete subsystem surfaces that asymmetry.
	Delete(ctx context.Context, key string) error
}
