// Package fsmanager implements commit.Manager against the local file
// system: a single "CURRENT" blob holding a magic-tagged header followed
// by the encoded recovery record, written to a temp file and renamed
// into place so a crash mid-write can never corrupt the previously
// committed blob.
package fsmanager

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flogdb/flog/blobstore"
)

var (
	commitMagic   = [4]byte{'F', 'L', 'G', 'C'}
	headerVersion = uint16(1)
	fixedLen      = 8 // magic(4) + version(2) + flags(2)
)

const blobName = "CURRENT"

// Manager persists the recovery record as a single named blob in a
// blobstore.BlobStore rooted at a local directory.
type Manager struct {
	store blobstore.BlobStore
}

// New creates a Manager backed by a local directory.
func New(dir string) *Manager {
	return &Manager{store: blobstore.NewLocalStore(dir)}
}

// NewWithStore creates a Manager against an arbitrary BlobStore, letting
// tests substitute blobstore.NewMemoryStore.
func NewWithStore(store blobstore.BlobStore) *Manager {
	return &Manager{store: store}
}

// Commit persists metadata durably before returning. beginAddress and
// flushedUntilAddress are not written separately: the header holds only
// magic, version and flags, and the same values are inside metadata.
func (m *Manager) Commit(ctx context.Context, beginAddress, flushedUntilAddress int64, metadata []byte) error {
	_ = beginAddress
	_ = flushedUntilAddress

	w, err := m.store.Create(ctx, blobName)
	if err != nil {
		return fmt.Errorf("fsmanager: create commit blob: %w", err)
	}

	header := make([]byte, fixedLen)
	copy(header[0:4], commitMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], headerVersion)
	binary.LittleEndian.PutUint16(header[6:8], 0) // flags, reserved

	if _, err := w.Write(header); err != nil {
		w.Close()
		return fmt.Errorf("fsmanager: write commit header: %w", err)
	}
	if _, err := w.Write(metadata); err != nil {
		w.Close()
		return fmt.Errorf("fsmanager: write commit payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("fsmanager: finalize commit blob: %w", err)
	}
	return nil
}

// GetCommitMetadata retrieves the most recent durable blob, stripping the
// header, or returns (nil, nil) if the log has never committed.
func (m *Manager) GetCommitMetadata(ctx context.Context) ([]byte, error) {
	blob, err := m.store.Open(ctx, blobName)
	if err != nil {
		if err == blobstore.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fsmanager: open commit blob: %w", err)
	}
	defer blob.Close()

	size := blob.Size()
	if size < int64(fixedLen) {
		return nil, fmt.Errorf("fsmanager: commit blob truncated")
	}

	buf := make([]byte, size)
	if err := readFullAt(ctx, blob, buf); err != nil {
		return nil, fmt.Errorf("fsmanager: read commit blob: %w", err)
	}

	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != commitMagic {
		return nil, fmt.Errorf("fsmanager: unrecognized commit blob magic")
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != headerVersion {
		return nil, fmt.Errorf("fsmanager: unsupported commit header version %d", version)
	}

	return buf[fixedLen:], nil
}

func readFullAt(ctx context.Context, b blobstore.Blob, buf []byte) error {
	var read int64
	for read < int64(len(buf)) {
		n, err := b.ReadAt(ctx, buf[read:], read)
		read += int64(n)
		if err != nil {
			if err == io.EOF && read == int64(len(buf)) {
				return nil
			}
			if n == 0 {
				return err
			}
		}
	}
	return nil
}
