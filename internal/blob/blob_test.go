package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	url, err := s.Put(ctx, "policies/abc.pdf", "application/pdf", []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	assert.Equal(t, "mem://policies/abc.pdf", url)

	data, err := s.Get(ctx, "policies/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemory()

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object not found")
}

func TestMemoryStore_PutCopiesData(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	buf := []byte("original")
	_, err := s.Put(ctx, "k", "text/plain", buf)
	require.NoError(t, err)
	buf[0] = 'X'

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemory()
	var _ Store = (*GCSStore)(nil)
}
