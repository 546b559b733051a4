package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openMemStore(t *testing.T) KeyValueStore {
	t.Helper()
	kv, err := OpenPebble(PebbleConfig{Memory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestPebbleStoreGetPut(t *testing.T) {
	kv := openMemStore(t)

	_, err := kv.Has(TagTxRecord.Key([]byte("missing")))
	require.NoError(t, err)

	require.NoError(t, kv.Put(TagTxRecord.Key([]byte("a")), []byte("value-a")))

	has, err := kv.Has(TagTxRecord.Key([]byte("a")))
	require.NoError(t, err)
	require.True(t, has)

	var got []byte
	require.NoError(t, kv.Get(TagTxRecord.Key([]byte("a")), func(v []byte) error {
		got = append([]byte(nil), v...)
		return nil
	}))
	require.Equal(t, []byte("value-a"), got)

	require.NoError(t, kv.Delete(TagTxRecord.Key([]byte("a"))))
	err = kv.Get(TagTxRecord.Key([]byte("a")), func([]byte) error { return nil })
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestPebbleStoreBatchAtomicity(t *testing.T) {
	kv := openMemStore(t)

	batch := kv.NewIndexedBatch()
	require.NoError(t, batch.Put(TagHeightMap.Key(U32BE(0)), []byte("h0")))
	require.NoError(t, batch.Put(TagHeightMap.Key(U32BE(1)), []byte("h1")))

	has, err := kv.Has(TagHeightMap.Key(U32BE(0)))
	require.NoError(t, err)
	require.False(t, has, "batch writes must not be visible before Write")

	require.NoError(t, batch.Write())

	has, err = kv.Has(TagHeightMap.Key(U32BE(0)))
	require.NoError(t, err)
	require.True(t, has)
}

func TestPebbleStorePrefixIterator(t *testing.T) {
	kv := openMemStore(t)

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, kv.Put(TagHeightMap.Key(U32BE(i)), []byte{byte(i)}))
	}
	require.NoError(t, kv.Put(TagIndexState.Key(), []byte("not-in-range")))

	it, err := kv.NewIterator(TagHeightMap.Prefix(), true)
	require.NoError(t, err)
	defer it.Close()

	var heights []uint32
	for ok := it.First(); ok; ok = it.Next() {
		key := it.Key()
		heights = append(heights, ParseU32BE(key[1:]))
	}
	require.Equal(t, []uint32{0, 1, 2, 3, 4}, heights)
}

func TestPebbleStoreVerify(t *testing.T) {
	kv := openMemStore(t)

	match, err := kv.Verify(TagSchema.Key(), []byte("indexers\x00\x00\x00\x00"))
	require.NoError(t, err)
	require.True(t, match, "first Verify call should adopt the tag")

	match, err = kv.Verify(TagSchema.Key(), []byte("indexers\x00\x00\x00\x00"))
	require.NoError(t, err)
	require.True(t, match)

	match, err = kv.Verify(TagSchema.Key(), []byte("mismatch"))
	require.NoError(t, err)
	require.False(t, match)
}

func TestPebbleStoreSnapshotIsolation(t *testing.T) {
	kv := openMemStore(t)
	require.NoError(t, kv.Put(TagIndexState.Key(), []byte("v1")))

	snap := kv.NewSnapshot()
	defer snap.Close()

	require.NoError(t, kv.Put(TagIndexState.Key(), []byte("v2")))

	var got []byte
	require.NoError(t, snap.Get(TagIndexState.Key(), func(v []byte) error {
		got = append([]byte(nil), v...)
		return nil
	}))
	require.Equal(t, []byte("v1"), got)
}
