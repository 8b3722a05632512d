// Package epoch implements epoch-based reclamation (EBR) for the paged
// allocator: a bounded table of per-client epoch slots, a global epoch
// counter, and a queue of actions deferred until every slot has left the
// epoch in which the action was enqueued.
package epoch

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSlot is returned by Acquire when the client table is full.
var ErrNoSlot = errors.New("epoch: no free client slot")

// ErrNotResumed is returned by Suspend when the client handle has no
// matching Resume in effect.
var ErrNotResumed = errors.New("epoch: client is not resumed")

const unprotected = uint64(0)

// MaxClients bounds the number of concurrent clients (producer, flush
// worker and reader goroutines) that may hold a slot at once. It is a
// compile-time cap, not a dynamic limit: Acquire takes a free slot and
// Release returns it to the table.
const MaxClients = 128

// Client is a handle to a table slot, obtained from Manager.Acquire and
// reused across repeated Resume/Suspend cycles by the same goroutine.
type Client struct {
	slot *slot
}

type slot struct {
	epoch atomic.Uint64
	taken atomic.Bool
}

type deferredAction struct {
	epoch  uint64
	action func()
}

// Manager coordinates epoch advancement and safe reclamation across a
// bounded set of clients.
type Manager struct {
	slots  [MaxClients]slot
	global atomic.Uint64

	mu       sync.Mutex
	deferred []deferredAction
}

// NewManager creates a Manager with the global epoch initialized to 1
// (epoch 0 is reserved to mean "unprotected").
func NewManager() *Manager {
	m := &Manager{}
	m.global.Store(1)
	return m
}

// Acquire reserves a table slot for a new client. The returned Client
// should be retained by the calling goroutine and reused for the rest of
// its lifetime.
func (m *Manager) Acquire() (*Client, error) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.taken.CompareAndSwap(false, true) {
			s.epoch.Store(unprotected)
			return &Client{slot: s}, nil
		}
	}
	return nil, ErrNoSlot
}

// Release returns a client's slot to the table. The client must not be
// resumed when this is called.
func (m *Manager) Release(c *Client) {
	c.slot.epoch.Store(unprotected)
	c.slot.taken.Store(false)
}

// Resume marks c as protected at the current global epoch. Memory
// observed to be live as of Resume will not be reclaimed until the
// matching Suspend.
func (m *Manager) Resume(c *Client) {
	c.slot.epoch.Store(m.global.Load())
}

// Suspend marks c as unprotected. Returns ErrNotResumed if c was not
// currently resumed.
func (m *Manager) Suspend(c *Client) error {
	if c.slot.epoch.Load() == unprotected {
		return ErrNotResumed
	}
	c.slot.epoch.Store(unprotected)
	return nil
}

// CurrentEpoch returns the current global epoch.
func (m *Manager) CurrentEpoch() uint64 {
	return m.global.Load()
}

// BumpEpoch advances the global epoch by one and returns the new value.
// It does not itself trigger draining; call ProtectAndDrain to run any
// deferred actions whose epoch has become safe.
func (m *Manager) BumpEpoch() uint64 {
	return m.global.Add(1)
}

// SafeEpoch returns the oldest epoch any resumed client currently holds,
// or the current global epoch plus one if no client is resumed (meaning
// every epoch up to and including the current one is safe).
func (m *Manager) SafeEpoch() uint64 {
	safe := m.global.Load() + 1
	for i := range m.slots {
		s := &m.slots[i]
		if !s.taken.Load() {
			continue
		}
		e := s.epoch.Load()
		if e != unprotected && e < safe {
			safe = e
		}
	}
	return safe
}

// Defer enqueues action to run once no resumed client can observe the
// current epoch, i.e. once SafeEpoch() exceeds the epoch at the time of
// this call.
func (m *Manager) Defer(action func()) {
	m.mu.Lock()
	m.deferred = append(m.deferred, deferredAction{epoch: m.global.Load(), action: action})
	m.mu.Unlock()
}

// ProtectAndDrain bumps the global epoch and then runs every deferred
// action whose enqueue epoch is now behind the safe epoch. It returns the
// number of actions run.
func (m *Manager) ProtectAndDrain() int {
	m.BumpEpoch()
	safe := m.SafeEpoch()

	m.mu.Lock()
	ready := m.deferred[:0:0]
	remaining := m.deferred[:0:0]
	for _, d := range m.deferred {
		if d.epoch < safe {
			ready = append(ready, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	m.deferred = remaining
	m.mu.Unlock()

	for _, d := range ready {
		d.action()
	}
	return len(ready)
}
