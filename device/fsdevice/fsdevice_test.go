package fsdevice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flogdb/flog/internal/fs"
)

func TestDevice_WriteAtThenReadAtRoundTrips(t *testing.T) {
	dev, err := New(t.TempDir(), 16)
	require.NoError(t, err)
	defer dev.Close()

	page := make([]byte, 16)
	copy(page, []byte("hello fs device"))
	require.NoError(t, dev.WriteAt(context.Background(), page, 0))

	out := make([]byte, 16)
	n, err := dev.ReadAt(context.Background(), out, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, page, out)
}

func TestDevice_ReadAtMissingPageReturnsEOF(t *testing.T) {
	dev, err := New(t.TempDir(), 16)
	require.NoError(t, err)
	defer dev.Close()

	out := make([]byte, 16)
	_, err = dev.ReadAt(context.Background(), out, 32)
	assert.Error(t, err)
}

func TestDevice_TruncateUntilRemovesOnlyFullyCoveredSegments(t *testing.T) {
	dev, err := New(t.TempDir(), 16)
	require.NoError(t, err)
	defer dev.Close()

	for page := int64(0); page < 4; page++ {
		require.NoError(t, dev.WriteAt(context.Background(), make([]byte, 16), page*16))
	}

	require.NoError(t, dev.TruncateUntil(context.Background(), 32))

	out := make([]byte, 16)
	_, err = dev.ReadAt(context.Background(), out, 0)
	assert.Error(t, err, "page 0 should have been removed")

	n, err := dev.ReadAt(context.Background(), out, 32)
	require.NoError(t, err)
	assert.Equal(t, 16, n, "page 2 should remain")
}

func TestDevice_WriteAtSurfacesInjectedFault(t *testing.T) {
	ffs := fs.NewFaultyFS(fs.LocalFS{})
	ffs.AddRule("page-00000000000000000000.seg", fs.Fault{FailAfterBytes: 4, Err: nil})

	dev, err := New(t.TempDir(), 16, WithFileSystem(ffs))
	require.NoError(t, err)
	defer dev.Close()

	err = dev.WriteAt(context.Background(), make([]byte, 16), 0)
	assert.Error(t, err, "write exceeding the injected byte limit should fail")
}

func TestDevice_WriteAtSucceedsUnderFaultyFSWithoutMatchingRule(t *testing.T) {
	ffs := fs.NewFaultyFS(fs.LocalFS{})

	dev, err := New(t.TempDir(), 16, WithFileSystem(ffs))
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.WriteAt(context.Background(), make([]byte, 16), 0))

	out := make([]byte, 16)
	n, err := dev.ReadAt(context.Background(), out, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
}
