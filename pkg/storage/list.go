package storage

import (
	"fmt"
	"strconv"
	"time"
)

// MaxListCap is the largest page the blob service returns.
const MaxListCap int32 = 5000

// BlobMeta describes a stored blob.
type BlobMeta struct {
	Key           string    `json:"key"`
	ContentType   string    `json:"content_type"`
	ContentLength int64     `json:"content_length"`
	LastModified  time.Time `json:"last_modified"`
}

// BlobList is one page of a listing. An empty NextMarker means the listing is complete.
type BlobList struct {
	Blobs      []BlobMeta `json:"blobs"`
	NextMarker string     `json:"next_marker,omitempty"`
}

// ParseMaxResults parses a max_results query value. Empty input returns
// fallback; values above MaxListCap are clamped.
func ParseMaxResults(s string, fallback int32) (int32, error) {
	if s == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max_results: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("max_results must be positive")
	}

	return int32(min(n, int(MaxListCap))), nil
}
