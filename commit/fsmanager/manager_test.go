package fsmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flogdb/flog/blobstore"
)

func TestManager_GetCommitMetadataEmptyBeforeFirstCommit(t *testing.T) {
	m := NewWithStore(blobstore.NewMemoryStore())
	blob, err := m.GetCommitMetadata(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestManager_CommitRoundTripsThroughHeader(t *testing.T) {
	m := NewWithStore(blobstore.NewMemoryStore())
	payload := []byte("recovery-record-bytes")

	require.NoError(t, m.Commit(context.Background(), 0, 1024, payload))

	got, err := m.GetCommitMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManager_LaterCommitOverwritesEarlier(t *testing.T) {
	m := NewWithStore(blobstore.NewMemoryStore())

	require.NoError(t, m.Commit(context.Background(), 0, 10, []byte("first")))
	require.NoError(t, m.Commit(context.Background(), 0, 20, []byte("second")))

	got, err := m.GetCommitMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestManager_FailedCommitLeavesPriorMetadataIntact(t *testing.T) {
	store := blobstore.NewMemoryStore()
	m := NewWithStore(store)

	require.NoError(t, m.Commit(context.Background(), 0, 10, []byte("first")))

	store.InjectFault(blobName, blobstore.Fault{FailClose: true})
	err := m.Commit(context.Background(), 0, 20, []byte("second"))
	assert.Error(t, err, "a commit that fails before publishing must surface an error")

	got, err := m.GetCommitMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got, "a failed commit must not clobber the previously durable record")
}
