package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "run/FDA/abc.json", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://run/FDA/abc.json", uri)

	payload[0] = 'C'
	data, contentType, ok := store.Object("run/FDA/abc.json")
	require.True(t, ok)
	require.Equal(t, "content", string(data))
	require.Equal(t, "application/json", contentType)
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b", "a"} {
		_, err := store.PutObject(context.Background(), p, "text/plain", nil)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b"}, store.Paths())

	_, err := store.PutObject(context.Background(), "", "text/plain", nil)
	require.Error(t, err)
	_, _, ok := store.Object("missing")
	require.False(t, ok)
}
