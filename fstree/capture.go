// Package fstree is the content-addressed filesystem snapshot engine: a
// single-threaded directory walk that hashes files and symlinks with
// BLAKE3-256, encodes directories as sorted tree blobs, and bounds
// resource use with file-count and file-size limits.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package fstree

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"

	"github.com/cxdb-io/cxdbgo/cmn/nlog"
)

const hashChunkSize = 8 * 1024

// FileRef is a local reference to a captured regular file, resolved back
// to disk lazily at upload time.
type FileRef struct {
	AbsPath string
	Size    int64
	Hash    [32]byte
}

// Stats summarises one capture pass.
type Stats struct {
	FileCount    int
	DirCount     int
	SymlinkCount int
	TotalBytes   int64
	Duration     time.Duration
}

// Snapshot is the immutable, in-memory result of one capture: the hashes
// of every distinct tree blob, file, and symlink target reachable from
// the root, plus the root hash identifying the whole snapshot.
type Snapshot struct {
	RootHash [32]byte
	Trees    map[[32]byte][]byte
	Files    map[[32]byte]FileRef
	Symlinks map[[32]byte]string
	Stats    Stats
}

type builder struct {
	opts     Options
	snap     *Snapshot
	visiting map[string]struct{}
	fileCnt  int
}

// Capture walks root and produces a Snapshot. A single synchronous pass;
// per-entry I/O errors are swallowed (the entry is skipped) but
// TooManyFiles and CyclicLink propagate.
func Capture(root string, opts Options) (*Snapshot, error) {
	start := time.Now()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, newErr(KindIo, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, newErr(KindIo, root, err)
	}
	if !info.IsDir() {
		return nil, newErr(KindOther, root, os.ErrInvalid)
	}

	b := &builder{
		opts: opts,
		snap: &Snapshot{
			Trees:    make(map[[32]byte][]byte),
			Files:    make(map[[32]byte]FileRef),
			Symlinks: make(map[[32]byte]string),
		},
		visiting: make(map[string]struct{}),
	}

	rootHash, err := b.buildTree(absRoot, "")
	if err != nil {
		return nil, err
	}
	b.snap.RootHash = rootHash
	b.snap.Stats.Duration = time.Since(start)
	return b.snap, nil
}

// buildTree builds the TreeEntry array for the directory at absPath
// (relPath is its forward-slash path relative to the capture root,
// "" at the root itself), encodes it, hashes it, and returns the hash.
func (b *builder) buildTree(absPath, relPath string) ([32]byte, error) {
	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}
	if _, seen := b.visiting[canon]; seen {
		return [32]byte{}, newErr(KindCyclicLink, relPath, nil)
	}
	b.visiting[canon] = struct{}{}
	defer delete(b.visiting, canon)

	children, err := os.ReadDir(absPath)
	if err != nil {
		return [32]byte{}, newErr(KindIo, relPath, err)
	}

	b.snap.Stats.DirCount++

	var entries []TreeEntry
	for _, child := range children {
		name := child.Name()
		childRel := name
		if relPath != "" {
			childRel = relPath + "/" + name
		}
		childAbs := filepath.Join(absPath, name)

		lst, err := os.Lstat(childAbs)
		if err != nil {
			nlog.Warningf("fstree: skip %s: %v", childAbs, err)
			continue
		}
		isDir := lst.IsDir() && lst.Mode()&os.ModeSymlink == 0

		if b.opts.ShouldExclude(childRel, isDir) {
			continue
		}

		entry, err := b.buildEntry(childAbs, childRel, lst)
		if err != nil {
			var fe *Error
			if asErr(err, &fe) && (fe.Kind == KindTooManyFiles || fe.Kind == KindCyclicLink) {
				return [32]byte{}, err
			}
			nlog.Warningf("fstree: skip %s: %v", childAbs, err)
			continue
		}
		entries = append(entries, entry)
	}

	blob, err := EncodeTree(entries)
	if err != nil {
		return [32]byte{}, err
	}
	hash := blake3.Sum256(blob)
	b.snap.Trees[hash] = blob
	return hash, nil
}

func (b *builder) buildEntry(absPath, relPath string, lst os.FileInfo) (TreeEntry, error) {
	mode := posixMode(lst)

	switch {
	case lst.Mode()&os.ModeSymlink != 0 && !b.opts.FollowSymlinks:
		target, err := os.Readlink(absPath)
		if err != nil {
			return TreeEntry{}, newErr(KindIo, relPath, err)
		}
		hash := blake3.Sum256([]byte(target))
		b.snap.Symlinks[hash] = target
		b.snap.Stats.SymlinkCount++
		return TreeEntry{Name: filepath.Base(relPath), Kind: KindLink, Mode: mode, Size: uint64(len(target)), Hash: hash}, nil

	case lst.IsDir() || (lst.Mode()&os.ModeSymlink != 0 && b.opts.FollowSymlinks && isDirTarget(absPath)):
		hash, err := b.buildTree(absPath, relPath)
		if err != nil {
			return TreeEntry{}, err
		}
		return TreeEntry{Name: filepath.Base(relPath), Kind: KindDir, Mode: mode, Size: 0, Hash: hash}, nil

	default:
		if b.fileCnt >= b.opts.MaxFiles {
			return TreeEntry{}, newErr(KindTooManyFiles, relPath, nil)
		}
		size := lst.Size()
		if lst.Mode()&os.ModeSymlink != 0 && b.opts.FollowSymlinks {
			// lst is the symlink's own lstat; its Size is the length of
			// the link target string, not the pointed-to file's content
			// length. Stat through the link for the real size.
			target, err := os.Stat(absPath)
			if err != nil {
				return TreeEntry{}, newErr(KindIo, relPath, err)
			}
			size = target.Size()
		}
		if size > b.opts.MaxFileSize {
			return TreeEntry{}, newErr(KindFileTooLarge, relPath, nil)
		}
		hash, err := hashFile(absPath)
		if err != nil {
			return TreeEntry{}, newErr(KindIo, relPath, err)
		}
		b.fileCnt++
		b.snap.Stats.FileCount++
		b.snap.Stats.TotalBytes += size
		b.snap.Files[hash] = FileRef{AbsPath: absPath, Size: size, Hash: hash}
		return TreeEntry{Name: filepath.Base(relPath), Kind: KindFile, Mode: mode, Size: uint64(size), Hash: hash}, nil
	}
}

func hashFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func isDirTarget(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func asErr(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
