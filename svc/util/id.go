package util

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	IDLength    = 22
	// bytes >= maxUnbiased are rejected so every character is equally likely.
	maxUnbiased = 256 - (256 % len(base62Chars))
)

var ErrRandomnessUnavailable = errors.New("secure randomness source unavailable")

var randReader io.Reader = rand.Reader

// GenID returns a fresh 22 character base62 id (about 131 bits of entropy).
func GenID() (string, error) {
	out := make([]byte, 0, IDLength)
	buf := make([]byte, IDLength*2)
	for len(out) < IDLength {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", errors.Wrap(ErrRandomnessUnavailable, err.Error())
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, base62Chars[int(b)%len(base62Chars)])
			if len(out) == IDLength {
				break
			}
		}
	}
	return string(out), nil
}

// ProbeRandom fails when the system randomness source cannot be read.
// Called once at startup.
func ProbeRandom() error {
	_, err := GenID()
	return err
}

// ValidID reports whether s could have been produced by GenID.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
