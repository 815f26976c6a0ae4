package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// IPHasher pseudonymizes client addresses before they leave the process, so
// shared rate limit counters never hold a raw IP. The HMAC key rotates every
// interval; every instance holding the same secret derives the same keys.
type IPHasher struct {
	interval time.Duration
	pepper   []byte
	now      func() time.Time

	mu    sync.Mutex
	epoch int64
	key   []byte
}

var ErrInvalidInterval = errors.New("rotation interval must be >= 1 minute")

func NewIPHasher(secret []byte, interval time.Duration) (*IPHasher, error) {
	if interval < time.Minute {
		return nil, ErrInvalidInterval
	}
	if len(secret) < 32 {
		return nil, errors.New("ip hasher secret must be at least 32 bytes")
	}
	// Domain-separate from whatever else the secret keys.
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("sealbin-ip-hasher"))
	return &IPHasher{
		interval: interval,
		pepper:   mac.Sum(nil),
		now:      time.Now,
		epoch:    -1,
	}, nil
}
func (h *IPHasher) HashIP(ip string) string {
	h.mu.Lock()
	epoch := h.now().Unix() / int64(h.interval/time.Second)
	if epoch != h.epoch || h.key == nil {
		if h.key != nil {
			Wipe(h.key)
		}
		h.key = deriveEpochKey(h.pepper, epoch)
		h.epoch = epoch
	}
	mac := hmac.New(sha256.New, h.key)
	h.mu.Unlock()
	mac.Write([]byte(ip))
	// 16 bytes is plenty to keep buckets apart.
	return hex.EncodeToString(mac.Sum(nil)[:16])
}

// Stop wipes key material. HashIP must not be called afterwards.
func (h *IPHasher) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	Wipe(h.key)
	Wipe(h.pepper)
	h.key = nil
}
func deriveEpochKey(pepper []byte, epoch int64) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte("epoch:" + strconv.FormatInt(epoch, 10)))
	return mac.Sum(nil)
}
