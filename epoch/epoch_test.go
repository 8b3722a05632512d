package epoch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ResumeSuspend(t *testing.T) {
	m := NewManager()
	c, err := m.Acquire()
	require.NoError(t, err)
	defer m.Release(c)

	m.Resume(c)
	require.NoError(t, m.Suspend(c))
	assert.ErrorIs(t, m.Suspend(c), ErrNotResumed)
}

func TestManager_SafeEpochAdvancesOnlyWhenUnprotected(t *testing.T) {
	m := NewManager()
	c, err := m.Acquire()
	require.NoError(t, err)
	defer m.Release(c)

	m.Resume(c)
	before := m.SafeEpoch()

	m.BumpEpoch()
	m.BumpEpoch()
	assert.Equal(t, before, m.SafeEpoch(), "resumed client must pin the safe epoch")

	require.NoError(t, m.Suspend(c))
	assert.Greater(t, m.SafeEpoch(), before)
}

func TestManager_ProtectAndDrainRunsOnlyOnceSafe(t *testing.T) {
	m := NewManager()
	c, err := m.Acquire()
	require.NoError(t, err)
	defer m.Release(c)

	m.Resume(c)

	ran := false
	m.Defer(func() { ran = true })

	m.ProtectAndDrain()
	assert.False(t, ran, "deferred action must not run while the enqueuing epoch is still protected")

	require.NoError(t, m.Suspend(c))
	m.ProtectAndDrain()
	assert.True(t, ran)
}

func TestManager_AcquireExhaustion(t *testing.T) {
	m := NewManager()
	clients := make([]*Client, 0, MaxClients)
	for i := 0; i < MaxClients; i++ {
		c, err := m.Acquire()
		require.NoError(t, err)
		clients = append(clients, c)
	}

	_, err := m.Acquire()
	assert.ErrorIs(t, err, ErrNoSlot)

	for _, c := range clients {
		m.Release(c)
	}
}

func TestManager_ConcurrentResumeSuspend(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Acquire()
			require.NoError(t, err)
			defer m.Release(c)
			for j := 0; j < 100; j++ {
				m.Resume(c)
				m.BumpEpoch()
				_ = m.Suspend(c)
			}
		}()
	}
	wg.Wait()
}
