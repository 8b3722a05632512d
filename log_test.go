package flog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flogdb/flog/blobstore"
	"github.com/flogdb/flog/commit/fsmanager"
	"github.com/flogdb/flog/core"
	"github.com/flogdb/flog/device/fsdevice"
)

type memDevice struct {
	mu   sync.Mutex
	data map[int64][]byte
}

func newMemDevice() *memDevice { return &memDevice{data: make(map[int64][]byte)} }

func (d *memDevice) ReadAt(ctx context.Context, dst []byte, offset int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(dst, d.data[offset])
	return n, nil
}

func (d *memDevice) WriteAt(ctx context.Context, p []byte, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	d.data[offset] = cp
	return nil
}

func (d *memDevice) Sync(ctx context.Context) error { return nil }
func (d *memDevice) Close() error                    { return nil }

func openTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	mgr := fsmanager.NewWithStore(blobstore.NewMemoryStore())
	base := []Option{WithPageSize(256), WithRingPages(4)}
	lg, err := Open(context.Background(), newMemDevice(), mgr, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lg.Dispose() })
	return lg
}

// commitInBackground calls Commit repeatedly until the test ends, so that
// EnqueueAndWaitForCommit, which only waits, sees its record committed.
func commitInBackground(t *testing.T, lg *Log) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_ = lg.Commit(ctx, false)
			time.Sleep(time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLog_TryAppendThenReadAsync(t *testing.T) {
	lg := openTestLog(t)

	ok, addr := lg.TryAppend([]byte("hello"))
	require.True(t, ok)
	require.NoError(t, lg.Commit(context.Background(), true))

	rec, err := lg.ReadAsync(context.Background(), addr, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), rec)
}

func TestLog_ReadAsyncRetriesOnUnderestimatedSize(t *testing.T) {
	lg := openTestLog(t)

	payload := []byte("a payload longer than four bytes")
	ok, addr := lg.TryAppend(payload)
	require.True(t, ok)
	require.NoError(t, lg.Commit(context.Background(), true))

	rec, err := lg.ReadAsync(context.Background(), addr, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, rec)
}

func TestLog_TryAppendBatchIsAtomicAndContiguous(t *testing.T) {
	lg := openTestLog(t)

	entries := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	ok, addr, _ := lg.TryAppendBatch(entries)
	require.True(t, ok)
	require.NoError(t, lg.Commit(context.Background(), true))

	cursor := addr
	for _, want := range entries {
		rec, err := lg.ReadAsync(context.Background(), cursor, len(want))
		require.NoError(t, err)
		assert.Equal(t, want, rec)
		cursor += core.Address(core.RecordSize(len(want)))
	}
}

func TestLog_EnqueueAndWaitForCommitDurablyPublishesWatermark(t *testing.T) {
	lg := openTestLog(t)
	commitInBackground(t, lg)

	addr, err := lg.EnqueueAndWaitForCommit(context.Background(), []byte("durable"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lg.CommittedUntilAddress(), addr)
}

func TestLog_ReadAsyncOutOfRangeBeforeCommit(t *testing.T) {
	lg := openTestLog(t)

	ok, addr := lg.TryAppend([]byte("not yet committed"))
	require.True(t, ok)

	_, err := lg.ReadAsync(context.Background(), addr, 32)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestLog_TruncateUntilMovesBeginAddress(t *testing.T) {
	lg := openTestLog(t)
	commitInBackground(t, lg)

	_, err := lg.EnqueueAndWaitForCommit(context.Background(), []byte("first"))
	require.NoError(t, err)
	second, err := lg.EnqueueAndWaitForCommit(context.Background(), []byte("second"))
	require.NoError(t, err)

	require.NoError(t, lg.TruncateUntil(context.Background(), second))
	assert.Equal(t, second, lg.BeginAddress())

	_, err = lg.ReadAsync(context.Background(), second, 32)
	require.NoError(t, err)
}

func TestLog_DisposeRejectsFurtherAppends(t *testing.T) {
	lg := openTestLog(t)
	require.NoError(t, lg.Dispose())

	ok, _ := lg.TryAppend([]byte("too late"))
	assert.False(t, ok)
}

func TestLog_ReopenAfterCommitRestoresAndScansAllRecords(t *testing.T) {
	dir := t.TempDir()
	want := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma payload longer than a page remainder")}

	openAt := func() *Log {
		dev, err := fsdevice.New(dir, 256)
		require.NoError(t, err)
		mgr := fsmanager.New(dir)
		lg, err := Open(context.Background(), dev, mgr, WithPageSize(256), WithRingPages(4))
		require.NoError(t, err)
		return lg
	}

	lg := openAt()
	var first core.Address
	for i, w := range want {
		ok, addr := lg.TryAppend(w)
		require.True(t, ok)
		if i == 0 {
			first = addr
		}
	}
	require.NoError(t, lg.Commit(context.Background(), true))
	require.NoError(t, lg.Dispose())

	reopened := openAt()
	defer reopened.Dispose()

	s := reopened.Scan(context.Background(), first)
	defer s.Close()
	for _, w := range want {
		_, rec, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, w, rec)
	}
}

func TestLog_ScanIteratesCommittedRecordsInOrder(t *testing.T) {
	lg := openTestLog(t)
	commitInBackground(t, lg)

	want := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	var first core.Address
	for i, w := range want {
		addr, err := lg.EnqueueAndWaitForCommit(context.Background(), w)
		require.NoError(t, err)
		if i == 0 {
			first = addr
		}
	}

	s := lg.Scan(context.Background(), first)
	defer s.Close()

	for _, w := range want {
		_, rec, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, w, rec)
	}
}
