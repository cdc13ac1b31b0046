// Package fsroots implements the persistent turn_id -> root_hash sparse
// index and the path resolver that walks hashed tree blobs against a
// content-addressed blob store.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package fsroots

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/cxdb-io/cxdbgo/cmn/debug"
	"github.com/cxdb-io/cxdbgo/cmn/nlog"
	"github.com/cxdb-io/cxdbgo/turnstore"
)

const recordSize = 8 + 32 + 4 // turn_id | root_hash | crc32

// Index is the append-only turn_id -> root_hash mapping backed by
// roots.idx. Single-writer: Open/Load happens once; Attach is the sole
// mutator thereafter.
type Index struct {
	mu   sync.RWMutex
	file *os.File
	fmu  sync.Mutex // guards append+flush on the file, separate from the map lock
	byID map[uint64][32]byte
}

// Open opens (creating if absent) path and loads its surviving records.
func Open(path string) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	idx := &Index{file: f, byID: make(map[uint64][32]byte)}
	if err := idx.load(); err != nil {
		f.Close()
		return nil, err
	}
	return idx, nil
}

// load reads records sequentially, truncating the file at the first
// record that can't be fully read or fails its CRC check.
func (idx *Index) load() error {
	if _, err := idx.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var offset int64
	buf := make([]byte, recordSize)
	for {
		n, err := io.ReadFull(idx.file, buf)
		if err == io.EOF {
			break
		}
		if err != nil || n < recordSize {
			nlog.Warningf("fsroots: truncating roots.idx at offset %d: short record", offset)
			return idx.truncateAt(offset)
		}

		turnID := binary.LittleEndian.Uint64(buf[0:8])
		var rootHash [32]byte
		copy(rootHash[:], buf[8:40])
		wantCRC := binary.LittleEndian.Uint32(buf[40:44])
		gotCRC := crc32.ChecksumIEEE(buf[0:40])

		if gotCRC != wantCRC {
			nlog.Warningf("fsroots: truncating roots.idx at offset %d: crc mismatch", offset)
			return idx.truncateAt(offset)
		}

		idx.byID[turnID] = rootHash
		offset += recordSize
	}
	return nil
}

func (idx *Index) truncateAt(offset int64) error {
	if err := idx.file.Truncate(offset); err != nil {
		return err
	}
	_, err := idx.file.Seek(offset, io.SeekStart)
	return err
}

// Attach appends a new record for turnID, flushes, and updates the
// in-memory map. Durability is "flushed to the OS"; no fsync.
func (idx *Index) Attach(turnID uint64, rootHash [32]byte) error {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:8], turnID)
	copy(buf[8:40], rootHash[:])
	binary.LittleEndian.PutUint32(buf[40:44], crc32.ChecksumIEEE(buf[0:40]))
	debug.Assert(len(buf) == recordSize, "fsroots: record size drifted from the on-disk layout")

	idx.fmu.Lock()
	defer idx.fmu.Unlock()

	if _, err := idx.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	// A direct os.File.Write already reaches the OS page cache; no
	// userspace buffering to flush, and no fsync (matches the original's
	// flush-only durability — see the Open Question note in DESIGN.md).
	if _, err := idx.file.Write(buf); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.byID[turnID] = rootHash
	idx.mu.Unlock()
	return nil
}

// Get returns the direct mapping for turnID, if any.
func (idx *Index) Get(turnID uint64) (hash [32]byte, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hash, ok = idx.byID[turnID]
	return
}

// GetInherited checks the direct mapping first; on miss, walks the
// parent chain until it finds a mapped ancestor, hits turn_id == 0, or
// the turn store errors.
func (idx *Index) GetInherited(turnID uint64, store turnstore.Store) (hash [32]byte, ok bool, err error) {
	if hash, ok = idx.Get(turnID); ok {
		return hash, true, nil
	}

	current := turnID
	for current != 0 {
		turn, terr := store.GetTurn(current)
		if terr != nil {
			return [32]byte{}, false, terr
		}
		if turn.ParentTurnID == 0 {
			return [32]byte{}, false, nil
		}
		if hash, ok = idx.Get(turn.ParentTurnID); ok {
			return hash, true, nil
		}
		current = turn.ParentTurnID
	}
	return [32]byte{}, false, nil
}

// HasSnapshot is a boolean convenience wrapper over GetInherited.
func (idx *Index) HasSnapshot(turnID uint64, store turnstore.Store) (bool, error) {
	_, ok, err := idx.GetInherited(turnID, store)
	return ok, err
}

// Stats is a diagnostic snapshot of the index; content byte totals are
// left to a caller with blob-store access.
type Stats struct {
	EntriesTotal int
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{EntriesTotal: len(idx.byID)}
}

// UniqueRoots dedups every attached root hash, for callers that want
// total referenced content size without double-counting forked turns
// that share a root.
func (idx *Index) UniqueRoots() [][32]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[[32]byte]struct{}, len(idx.byID))
	out := make([][32]byte, 0, len(idx.byID))
	for _, h := range idx.byID {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func (idx *Index) Close() error {
	return idx.file.Close()
}
