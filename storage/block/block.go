// Package block implements the content-addressed immutable block
// store of spec component B: blocks are keyed by (overlay, block id)
// where the id is the BLAKE3-256 hash of their canonical encoding, and
// put/get always recompute that hash rather than trust a caller key.
package block

import (
	"encoding/binary"
	"fmt"

	"github.com/lukechampine/blake3"
	"nextgraph.dev/broker/types"
)

const (
	pageSize    = 4096
	maxPages    = 256 // 256*4096 = 1MiB cap per block
	maxBodySize = pageSize * maxPages
)

// Block is the BlockV0 wire/storage format (spec §3 "Block", §7
// "BlockV0"). Children induces the commit DAG; CommitHeaderID is set
// only on the block that begins a commit.
type Block struct {
	Children        []types.BlockId
	CommitHeaderId   *types.ObjectId
	EncryptedContent []byte
}

// Encode produces the canonical length-prefixed encoding whose
// BLAKE3-256 hash is the block's id. The encoding is also what is
// written to disk, so Id and Decode agree on every field.
func (b *Block) Encode() ([]byte, error) {
	if len(b.EncryptedContent) > maxBodySize {
		return nil, fmt.Errorf("block: content exceeds %d bytes", maxBodySize)
	}
	buf := make([]byte, 0, 4+len(b.Children)*32+1+32+4+len(b.EncryptedContent))

	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(b.Children)))
	buf = append(buf, n4[:]...)
	for _, c := range b.Children {
		buf = append(buf, c.Bytes()...)
	}

	if b.CommitHeaderId != nil {
		buf = append(buf, 1)
		buf = append(buf, b.CommitHeaderId.Bytes()...)
	} else {
		buf = append(buf, 0)
	}

	binary.BigEndian.PutUint32(n4[:], uint32(len(b.EncryptedContent)))
	buf = append(buf, n4[:]...)
	buf = append(buf, b.EncryptedContent...)
	return buf, nil
}

// Decode parses the canonical encoding produced by Encode.
func Decode(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, types.StorageDataCorruption
	}
	pos := 0
	nChildren := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	children := make([]types.BlockId, 0, nChildren)
	for i := uint32(0); i < nChildren; i++ {
		if pos+32 > len(data) {
			return nil, types.StorageDataCorruption
		}
		var id types.BlockId
		copy(id[:], data[pos:pos+32])
		children = append(children, id)
		pos += 32
	}
	if pos >= len(data) {
		return nil, types.StorageDataCorruption
	}
	hasHeader := data[pos]
	pos++
	var headerId *types.ObjectId
	if hasHeader == 1 {
		if pos+32 > len(data) {
			return nil, types.StorageDataCorruption
		}
		var id types.ObjectId
		copy(id[:], data[pos:pos+32])
		headerId = &id
		pos += 32
	}
	if pos+4 > len(data) {
		return nil, types.StorageDataCorruption
	}
	contentLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if pos+int(contentLen) > len(data) {
		return nil, types.StorageDataCorruption
	}
	content := append([]byte{}, data[pos:pos+int(contentLen)]...)
	return &Block{Children: children, CommitHeaderId: headerId, EncryptedContent: content}, nil
}

// Id computes the content address of the block: BLAKE3-256 of the
// canonical encoding (spec §3 "Block id = BLAKE3 of serialized content").
func (b *Block) Id() (types.BlockId, error) {
	enc, err := b.Encode()
	if err != nil {
		return types.BlockId{}, err
	}
	sum := blake3.Sum256(enc)
	var id types.BlockId
	copy(id[:], sum[:])
	return id, nil
}

// padToPage zero-pads data up to the next multiple of pageSize and
// returns the padded buffer. It applies no cap itself; Encode is what
// rejects content larger than maxBodySize.
func padToPage(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	rem := len(data) % pageSize
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data)+(pageSize-rem))
	copy(padded, data)
	return padded
}
