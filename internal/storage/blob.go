package storage

import (
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid key")

// BlobStore holds the static data files (question sources, catalog files) and
// archived transcripts, addressed by slash-separated keys.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
