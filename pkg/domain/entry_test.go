package domain

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestEntryExpiredAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		ID:         "abc",
		Ciphertext: []byte("hello"),
		Nonce:      []byte("n1"),
		CreatedAt:  created,
		ExpiresAt:  created.Add(5 * time.Second),
	}

	require.False(t, e.ExpiredAt(created))
	require.False(t, e.ExpiredAt(created.Add(4999*time.Millisecond)))
	require.True(t, e.ExpiredAt(created.Add(5*time.Second)), "entry must be gone exactly at expires_at")
	require.True(t, e.ExpiredAt(created.Add(6*time.Second)))
	require.Equal(t, int64(7), e.Size())
}

func TestContextErrorsAreTimeouts(t *testing.T) {
	for _, err := range []error{
		context.DeadlineExceeded,
		context.Canceled,
		errors.Wrap(context.DeadlineExceeded, "create"),
	} {
		require.Equal(t, http.StatusRequestTimeout, Status(err))
		require.Equal(t, "REQUEST_TIMEOUT", ToResp(err, "").Code)
	}
}

func TestStatusUnwrapsWrappedErrors(t *testing.T) {
	wrapped := errors.Wrap(ErrPayloadTooLarge, "put")
	require.Equal(t, http.StatusRequestEntityTooLarge, Status(wrapped))
	require.Equal(t, "PAYLOAD_TOO_LARGE", ToResp(wrapped, "").Code)

	require.Equal(t, http.StatusInsufficientStorage, Status(ErrIDCollision))
	require.Equal(t, ErrCapacityExceeded.Code, ToResp(ErrIDCollision, "").Code)

	plain := errors.New("boom")
	require.Equal(t, http.StatusInternalServerError, Status(plain))
	resp := ToResp(plain, "req-1")
	require.Equal(t, "INTERNAL_ERROR", resp.Code)
	require.Equal(t, "req-1", resp.RequestID)
	require.NotContains(t, resp.Error, "boom")
}
