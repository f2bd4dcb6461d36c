package blob

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ErrNotFound is returned for unknown or revoked references.
var ErrNotFound = errors.New("blob reference not found")

// Blob is downloadable content handed out by reference.
type Blob struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Store mints references to in-memory blobs. A reference stays valid until
// it is revoked, or until the TTL passes when one is configured.
type Store struct {
	prefix string
	items  *cache.Cache
}

// NewStore returns a Store whose references look like prefix+id. A zero ttl
// keeps blobs until Revoke.
func NewStore(prefix string, ttl time.Duration) *Store {
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, ttl
	}
	return &Store{
		prefix: prefix,
		items:  cache.New(expiration, cleanup),
	}
}

// Mint stores data and returns a fresh reference URL.
func (s *Store) Mint(data []byte, filename, contentType string) (string, error) {
	b := &Blob{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	s.items.Set(b.ID, b, cache.DefaultExpiration)
	return s.prefix + b.ID, nil
}

// Get returns the blob behind a reference URL or bare id.
func (s *Store) Get(ref string) (*Blob, error) {
	if x, found := s.items.Get(s.id(ref)); found {
		return x.(*Blob), nil
	}
	return nil, ErrNotFound
}

// Revoke invalidates a reference. Revoking twice is not an error.
func (s *Store) Revoke(ref string) {
	s.items.Delete(s.id(ref))
}

// Len returns the number of live references.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

func (s *Store) id(ref string) string {
	return strings.TrimPrefix(ref, s.prefix)
}
