package domain

import (
	"time"
)

// Entry is one stored paste. The server treats Ciphertext and Nonce as
// opaque bytes; entries are never mutated after insertion.
type Entry struct {
	ID         string
	Ciphertext []byte
	Nonce      []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Size is the number of payload bytes charged against store capacity.
func (e *Entry) Size() int64 {
	return int64(len(e.Ciphertext) + len(e.Nonce))
}

// ExpiredAt reports whether the entry is no longer observable at now.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type CreateParams struct {
	Ciphertext []byte
	Nonce      []byte
	// TTL is the caller-requested lifetime; zero selects the server default.
	TTL time.Duration
}

type CreateResult struct {
	Entry         *Entry
	DeletionToken string
}
