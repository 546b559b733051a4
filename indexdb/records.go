package indexdb

import (
	"encoding/binary"
	"fmt"

	"chainidx/chaincfg/chainhash"
)

const schemaTagName = "indexers"
const schemaVersion = 0

// schemaTagValue is the persisted V record: the ASCII tag concatenated
// with the version, little-endian.
func schemaTagValue() []byte {
	buf := make([]byte, len(schemaTagName)+4)
	copy(buf, schemaTagName)
	binary.LittleEndian.PutUint32(buf[len(schemaTagName):], schemaVersion)
	return buf
}

// networkMagicValue encodes a network magic as 4 bytes little-endian.
func networkMagicValue(magic uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, magic)
	return buf
}

// IndexState is the persisted cursor: height is the greatest block height
// whose indexing has been fully committed; startHeight/startHash mark the
// earliest block for which the indexes are known-complete.
type IndexState struct {
	StartHeight uint32
	StartHash   chainhash.Hash
	Height      uint32
}

// Clone returns a copy safe to mutate independently of the receiver.
func (s IndexState) Clone() IndexState { return s }

// encodeIndexState packs R: u32 startHeight || 32B startHash || u32 height.
func encodeIndexState(s IndexState) []byte {
	buf := make([]byte, 4+32+4)
	binary.BigEndian.PutUint32(buf[0:4], s.StartHeight)
	copy(buf[4:36], s.StartHash[:])
	binary.BigEndian.PutUint32(buf[36:40], s.Height)
	return buf
}

func decodeIndexState(b []byte) (IndexState, error) {
	if len(b) != 40 {
		return IndexState{}, fmt.Errorf("indexdb: invalid IndexState length %d", len(b))
	}
	var s IndexState
	s.StartHeight = binary.BigEndian.Uint32(b[0:4])
	copy(s.StartHash[:], b[4:36])
	s.Height = binary.BigEndian.Uint32(b[36:40])
	return s, nil
}
