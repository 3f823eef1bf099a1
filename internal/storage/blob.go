package storage

import (
	"errors"
	"io"
)

// ErrBadKey rejects empty keys and keys that escape the store root.
var ErrBadKey = errors.New("invalid blob key")

// BlobStore holds question images referenced by Question.ImageKey.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error)
}
