package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lancechain/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := []byte("acct:key")
	value := []byte("value")

	require.NoError(t, tr.Update(key, value))
	root, err := tr.Commit(common.Hash{}, 0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieIteratePrefix(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Update([]byte("acct:b"), []byte{2}))
	require.NoError(t, tr.Update([]byte("acct:a"), []byte{1}))
	require.NoError(t, tr.Update([]byte("meta:x"), []byte{9}))
	require.NoError(t, tr.Update([]byte("acct:c"), []byte{3}))

	var keys []string
	err = tr.Iterate([]byte("acct:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"acct:a", "acct:b", "acct:c"}, keys)
}

func TestTrieCopyIsIndependent(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Update([]byte("k"), []byte("v1")))
	before := tr.Hash()

	cp := tr.Copy()
	require.NoError(t, cp.Update([]byte("k"), []byte("v2")))
	require.NoError(t, cp.Delete([]byte("k")))

	got, err := tr.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
	require.Equal(t, before, tr.Hash())

	missing, err := cp.Get([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTrieResetDiscardsChanges(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Update([]byte("k"), []byte("v")))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	require.NoError(t, tr.Update([]byte("k"), []byte("dirty")))
	require.NoError(t, tr.Reset(root))
	got, err := tr.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
