package imageprobe

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// BlobPrefix starts every source handed out by a BlobStore.
const BlobPrefix = domain.BlobScheme + ":kollage/"

// Blob is one uploaded image.
type Blob struct {
	Source      string
	ContentType string
	Data        []byte
	Info        app.ImageInfo
}

// BlobStore keeps uploaded image bytes for the life of the process.
type BlobStore struct {
	maxBytes int64

	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewBlobStore constructs an empty store that rejects uploads over maxBytes.
func NewBlobStore(maxBytes int64) *BlobStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &BlobStore{maxBytes: maxBytes, blobs: map[string]Blob{}}
}

// Put validates that data decodes as an image and stores it under a new
// blob: source.
func (s *BlobStore) Put(data []byte, contentType string) (Blob, error) {
	if len(data) == 0 {
		return Blob{}, fmt.Errorf("%w: empty upload", domain.ErrLoad)
	}
	if int64(len(data)) > s.maxBytes {
		return Blob{}, fmt.Errorf("%w: %w", domain.ErrLoad, ErrTooLarge)
	}
	info, err := decodeInfo(data, contentType)
	if err != nil {
		return Blob{}, err
	}
	if info.Format == "svg" {
		contentType = "image/svg+xml"
	} else if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		contentType = "image/" + info.Format
	}
	blob := Blob{
		Source:      BlobPrefix + uuid.NewString(),
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
		Info:        info,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[blob.Source] = blob
	return blob, nil
}

// Get returns a stored blob by its source.
func (s *BlobStore) Get(src string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[strings.TrimSpace(src)]
	return blob, ok
}

// Len reports how many blobs are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
