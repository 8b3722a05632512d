package commit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/core"
)

type memManager struct {
	mu   sync.Mutex
	blob []byte
}

func (m *memManager) Commit(_ context.Context, _, _ int64, metadata []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = append([]byte(nil), metadata...)
	return nil
}

func (m *memManager) GetCommitMetadata(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob, nil
}

func TestCoordinator_CommitPublishesWatermarksAndWakesFuture(t *testing.T) {
	mgr := &memManager{}
	co := NewCoordinator(mgr, codec.GoJSON{})

	fut := co.CurrentFuture()

	err := co.Commit(context.Background(), core.Address(0), core.Address(100))
	require.NoError(t, err)

	assert.Equal(t, core.Address(0), co.CommittedBeginAddress())
	assert.Equal(t, core.Address(100), co.CommittedUntilAddress())

	select {
	case <-fut.Done():
	default:
		t.Fatal("future subscribed before commit should be completed by it")
	}
	until, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Address(100), until)

	assert.NotSame(t, fut, co.CurrentFuture(), "a fresh future must be installed after commit")
}

func TestCoordinator_CommitIsIdempotentWhenNoWatermarkAdvances(t *testing.T) {
	mgr := &memManager{}
	co := NewCoordinator(mgr, codec.GoJSON{})

	require.NoError(t, co.Commit(context.Background(), core.Address(0), core.Address(100)))
	blobAfterFirst := mgr.blob

	require.NoError(t, co.Commit(context.Background(), core.Address(0), core.Address(50)))
	assert.Equal(t, blobAfterFirst, mgr.blob, "a stale commit must not rewrite the recovery record")
	assert.Equal(t, core.Address(100), co.CommittedUntilAddress())
}

func TestCoordinator_CommitClampsAgainstRegression(t *testing.T) {
	mgr := &memManager{}
	co := NewCoordinator(mgr, codec.GoJSON{})

	require.NoError(t, co.Commit(context.Background(), core.Address(10), core.Address(100)))
	require.NoError(t, co.Commit(context.Background(), core.Address(5), core.Address(150)))

	assert.Equal(t, core.Address(10), co.CommittedBeginAddress(), "begin must never regress")
	assert.Equal(t, core.Address(150), co.CommittedUntilAddress())
}

func TestCoordinator_DisposeCompletesCurrentAndFutureFuturesWithError(t *testing.T) {
	mgr := &memManager{}
	co := NewCoordinator(mgr, codec.GoJSON{})

	fut := co.CurrentFuture()
	co.Dispose()

	_, err := fut.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = co.CurrentFuture().Wait(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)

	assert.ErrorIs(t, co.Commit(context.Background(), core.Address(0), core.Address(1)), ErrDisposed)
}

func TestEncodeDecodeRecoveryRecordRoundTrips(t *testing.T) {
	rec := RecoveryRecord{BeginAddress: core.Address(4), FlushedUntilAddress: core.Address(2048)}

	blob, err := EncodeRecoveryRecord(codec.GoJSON{}, rec)
	require.NoError(t, err)

	decoded, err := DecodeRecoveryRecord(blob, codec.JSON{})
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}
