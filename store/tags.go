package store

import "encoding/binary"

// Tag is the single byte that prefixes every key, so that all records of
// one kind occupy a contiguous lexicographic range.
type Tag byte

// Canonical tags, per the keyspace schema: each record kind gets its own
// byte so prefix scans never cross kinds.
const (
	TagSchema     Tag = 'V' // schema version marker
	TagNetwork    Tag = 'O' // network magic
	TagIndexState Tag = 'R' // IndexState cursor
	TagHeightMap  Tag = 'h' // height -> block hash
	TagTxRecord   Tag = 't' // tx hash -> extended tx record
	TagAddrTx     Tag = 'T' // (addrhash, txhash) -> nil
	TagAddrCoin   Tag = 'C' // (addrhash, txhash, vout) -> nil
)

// Key concatenates the tag with zero or more field byte slices to build a
// complete store key. Composite keys are built by passing each
// fixed-width field in order, so that prefix scans on a leading subset of
// fields produce lexicographically ordered results.
func (t Tag) Key(fields ...[]byte) []byte {
	n := 1
	for _, f := range fields {
		n += len(f)
	}
	buf := make([]byte, 1, n)
	buf[0] = byte(t)
	for _, f := range fields {
		buf = append(buf, f...)
	}
	return buf
}

// Prefix returns the bare single-byte prefix shared by every key of this
// tag, suitable as the prefix argument to Iterable.NewIterator.
func (t Tag) Prefix() []byte {
	return []byte{byte(t)}
}

// U32BE encodes v as 4 bytes big-endian, so that numeric key fields sort
// the same way the numbers do.
func U32BE(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// ParseU32BE decodes 4 big-endian bytes back into a uint32.
func ParseU32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
