package util

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestIDFrom(t *testing.T) {
	in := "4f1c2d6e-8a0b-4c3d-9e2f-0123456789ab"
	require.Equal(t, in, RequestIDFrom(in))

	generated := RequestIDFrom("<script>alert(1)</script>")
	_, err := uuid.Parse(generated)
	require.NoError(t, err)

	require.NotEqual(t, RequestIDFrom(""), RequestIDFrom(""))
}

func TestRequestIDContext(t *testing.T) {
	require.Empty(t, GetRequestID(context.Background()))
	ctx := SetRequestID(context.Background(), "rid")
	require.Equal(t, "rid", GetRequestID(ctx))
}
