package fsroots

import (
	"errors"
	"strings"

	"github.com/cxdb-io/cxdbgo/blobstore"
	"github.com/cxdb-io/cxdbgo/fstree"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrNotADirectory      = errors.New("not a directory")
	ErrPathIsADirectory   = errors.New("path is a directory")
)

// Resolved is what ResolvePath/GetFileAtPath return for a leaf: the
// content bytes (file data or symlink target) and its TreeEntry.
type Resolved struct {
	Content []byte
	Entry   fstree.TreeEntry
}

func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ResolvePath walks rootHash's tree by path, returning the leaf's
// content and TreeEntry. An empty path resolves to the root directory,
// whose "content" is its own encoded tree blob.
func ResolvePath(store blobstore.Store, rootHash [32]byte, path string) (Resolved, error) {
	components := splitPath(path)

	blob, ok := store.Get(rootHash)
	if !ok {
		return Resolved{}, ErrNotFound
	}
	if len(components) == 0 {
		return Resolved{Content: blob, Entry: fstree.TreeEntry{Kind: fstree.KindDir, Hash: rootHash}}, nil
	}

	curHash := rootHash
	for i, name := range components {
		entries, err := fstree.DecodeTree(blob)
		if err != nil {
			return Resolved{}, err
		}

		entry, found := findEntry(entries, name)
		if !found {
			return Resolved{}, ErrNotFound
		}

		last := i == len(components)-1
		if !last && entry.Kind != fstree.KindDir {
			return Resolved{}, ErrNotADirectory
		}

		curHash = entry.Hash
		switch entry.Kind {
		case fstree.KindDir:
			blob, ok = store.Get(curHash)
			if !ok {
				return Resolved{}, ErrNotFound
			}
			if last {
				return Resolved{Content: blob, Entry: entry}, nil
			}
		case fstree.KindFile, fstree.KindLink:
			data, ok := store.Get(curHash)
			if !ok {
				return Resolved{}, ErrNotFound
			}
			return Resolved{Content: data, Entry: entry}, nil
		}
	}
	return Resolved{}, ErrNotFound
}

// GetFileAtPath is ResolvePath restricted to non-directory leaves.
func GetFileAtPath(store blobstore.Store, rootHash [32]byte, path string) (Resolved, error) {
	r, err := ResolvePath(store, rootHash, path)
	if err != nil {
		return Resolved{}, err
	}
	if r.Entry.Kind == fstree.KindDir {
		return Resolved{}, ErrPathIsADirectory
	}
	return r, nil
}

func findEntry(entries []fstree.TreeEntry, name string) (fstree.TreeEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return fstree.TreeEntry{}, false
}
