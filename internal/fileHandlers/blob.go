package fileHandlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

// BlobStore keeps attachment bytes and hands back a URL clients can fetch.
type BlobStore interface {
	// Put stores data under key. created is false when an identical blob
	// was already stored under that key.
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, created bool, err error)
	Delete(ctx context.Context, key string) error
}

var extRegex = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// ContentKey derives a content-addressed key from the bytes and keeps the
// original extension when it looks sane.
func ContentKey(data []byte, filename string) string {
	hash := sha256.Sum256(data)
	key := hex.EncodeToString(hash[:])

	ext := strings.ToLower(filepath.Ext(filename))
	if extRegex.MatchString(ext) {
		key += ext
	}
	return key
}
