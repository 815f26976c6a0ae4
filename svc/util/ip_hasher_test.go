package util

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return bytes.Repeat([]byte{0x42, 0x17}, 16)
}

func TestIPHasherDeterministic(t *testing.T) {
	a, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)
	b, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)

	h := a.HashIP("203.0.113.7")
	require.Len(t, h, 32)
	require.NotContains(t, h, "203.0.113.7")
	require.Equal(t, h, a.HashIP("203.0.113.7"))
	require.Equal(t, h, b.HashIP("203.0.113.7"), "instances sharing a secret must agree")
	require.NotEqual(t, h, a.HashIP("203.0.113.8"))
}

func TestIPHasherDifferentSecrets(t *testing.T) {
	a, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)
	other := bytes.Repeat([]byte{0x99}, 32)
	b, err := NewIPHasher(other, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, a.HashIP("198.51.100.1"), b.HashIP("198.51.100.1"))
}

func TestIPHasherKeyRotation(t *testing.T) {
	h, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	h.now = func() time.Time { return now }

	first := h.HashIP("192.0.2.1")
	now = now.Add(time.Minute)
	require.Equal(t, first, h.HashIP("192.0.2.1"))
	now = now.Add(2 * time.Hour)
	require.NotEqual(t, first, h.HashIP("192.0.2.1"))
}

func TestIPHasherConcurrency(t *testing.T) {
	h, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)
	want := h.HashIP("192.0.2.55")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := h.HashIP("192.0.2.55"); got != want {
					t.Errorf("hash changed under concurrency: %s != %s", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestIPHasherInvalidConfig(t *testing.T) {
	_, err := NewIPHasher(testSecret(), 30*time.Second)
	require.ErrorIs(t, err, ErrInvalidInterval)
	_, err = NewIPHasher([]byte("short"), time.Hour)
	require.Error(t, err)
}

func TestIPHasherStopWipes(t *testing.T) {
	h, err := NewIPHasher(testSecret(), time.Hour)
	require.NoError(t, err)
	h.HashIP("192.0.2.1")
	pepper := h.pepper
	h.Stop()
	require.Equal(t, make([]byte, len(pepper)), pepper)
}
