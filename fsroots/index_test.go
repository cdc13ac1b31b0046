package fsroots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxdb-io/cxdbgo/turnstore"
)

func hashOf(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func TestAttachLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Attach(1, hashOf(1)))
	require.NoError(t, idx.Attach(1, hashOf(2)))

	got, ok := idx.Get(1)
	require.True(t, ok)
	require.Equal(t, hashOf(2), got)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Attach(5, hashOf(9)))
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get(5)
	require.True(t, ok)
	require.Equal(t, hashOf(9), got)
}

func TestTruncatesCorruptedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Attach(1, hashOf(1)))
	require.NoError(t, idx.Close())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3}) // short, corrupt trailing record
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get(1)
	require.True(t, ok)
	require.Equal(t, hashOf(1), got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(recordSize), info.Size())
}

func TestGetInheritedWalksParentChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()

	store := turnstore.NewMemory()
	store.Put(turnstore.Turn{TurnID: 7, ParentTurnID: 5})
	store.Put(turnstore.Turn{TurnID: 5, ParentTurnID: 0})
	store.Put(turnstore.Turn{TurnID: 9, ParentTurnID: 0})

	require.NoError(t, idx.Attach(5, hashOf(42)))

	hash, ok, err := idx.GetInherited(7, store)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hashOf(42), hash)

	_, ok, err = idx.GetInherited(9, store)
	require.NoError(t, err)
	require.False(t, ok)
}
