package util

import (
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy pool gone") }

func TestGenIDShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		id, err := GenID()
		require.NoError(t, err)
		require.Len(t, id, IDLength)
		require.True(t, ValidID(id), "id %q has characters outside base62", id)
	}
}

func TestGenIDUnique(t *testing.T) {
	const n = 5000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := GenID()
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}

func TestGenIDRandomnessUnavailable(t *testing.T) {
	randReader = failingReader{}
	defer func() { randReader = rand.Reader }()

	_, err := GenID()
	require.Error(t, err)
	require.ErrorContains(t, err, ErrRandomnessUnavailable.Error())
	require.Error(t, ProbeRandom())
}

func TestValidID(t *testing.T) {
	require.False(t, ValidID(""))
	require.False(t, ValidID("short"))
	require.False(t, ValidID("abcdefghijklmnopqrstu-"))
	require.False(t, ValidID("abcdefghijklmnopqrstuvw"))
	require.True(t, ValidID("abcdefghijklmnopqrstuv"))
}
