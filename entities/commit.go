package entities

import (
	"encoding/binary"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

const (
	sufCommitEvent      byte = 0x01
	sufCommitHomePinned byte = 0x02
	sufCommitAcks       byte = 0x03
	sufCommitDeps       byte = 0x04
	sufCommitFiles      byte = 0x05
	sufCommitFutures    byte = 0x06
)

func encodeEvent(e types.Event) ([]byte, error) {
	b := make([]byte, 0, 32+32+32+8+4+len(e.Content))
	b = append(b, e.Topic[:]...)
	b = append(b, e.Commit[:]...)
	b = append(b, e.Peer[:]...)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.Seq)
	b = append(b, seq[:]...)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(e.Content)))
	b = append(b, l[:]...)
	b = append(b, e.Content...)
	return b, nil
}

func decodeEvent(b []byte) (types.Event, error) {
	var e types.Event
	if len(b) < 32+32+32+8+4 {
		return e, kcv.ErrSerializationErr
	}
	copy(e.Topic[:], b[0:32])
	copy(e.Commit[:], b[32:64])
	copy(e.Peer[:], b[64:96])
	e.Seq = binary.BigEndian.Uint64(b[96:104])
	contentLen := binary.BigEndian.Uint32(b[104:108])
	if len(b) != 108+int(contentLen) {
		return e, kcv.ErrSerializationErr
	}
	e.Content = append([]byte{}, b[108:]...)
	return e, nil
}

var commitEventCol = kcv.ExistentialColumn[types.Event]{
	Suffix: sufCommitEvent,
	Encode: encodeEvent,
	Decode: decodeEvent,
}

var commitHomePinnedCol = kcv.SingleValueColumn[bool]{
	Suffix: sufCommitHomePinned,
	Encode: encodeBool,
	Decode: decodeBool,
}

var commitAcksCol = kcv.MultiValueColumn[types.ObjectId]{
	Suffix: sufCommitAcks, Encode: encodeId32[types.ObjectId], Decode: decodeId32[types.ObjectId],
}
var commitDepsCol = kcv.MultiValueColumn[types.ObjectId]{
	Suffix: sufCommitDeps, Encode: encodeId32[types.ObjectId], Decode: decodeId32[types.ObjectId],
}
var commitFilesCol = kcv.MultiValueColumn[types.ObjectId]{
	Suffix: sufCommitFiles, Encode: encodeId32[types.ObjectId], Decode: decodeId32[types.ObjectId],
}
var commitFuturesCol = kcv.MultiValueColumn[types.ObjectId]{
	Suffix: sufCommitFutures, Encode: encodeId32[types.ObjectId], Decode: decodeId32[types.ObjectId],
}

// Commit is the persistent view over prefix 'e', key=overlay||object
// (spec §3 "Commit").
type Commit struct {
	kcv.Base
	Overlay types.OverlayId
	Id      types.ObjectId
}

func commitKey(overlay types.OverlayId, id types.ObjectId) []byte {
	k := make([]byte, 0, 64)
	k = append(k, overlay.Bytes()...)
	k = append(k, id.Bytes()...)
	return k
}

func OpenCommit(s kcv.Storage, overlay types.OverlayId, id types.ObjectId) (*Commit, error) {
	c := &Commit{kcv.Base{S: s, P: prefixCommit, K: commitKey(overlay, id)}, overlay, id}
	if !commitEventCol.Exists(c) {
		return nil, kcv.ErrNotFound
	}
	return c, nil
}

func CreateCommit(s kcv.Storage, overlay types.OverlayId, id types.ObjectId, event types.Event, deps, acks, files []types.ObjectId) (*Commit, error) {
	c := &Commit{kcv.Base{S: s, P: prefixCommit, K: commitKey(overlay, id)}, overlay, id}
	if err := commitEventCol.Create(c, event); err != nil {
		return nil, err
	}
	for _, d := range deps {
		if err := commitDepsCol.Add(c, d); err != nil {
			return nil, err
		}
	}
	for _, a := range acks {
		if err := commitAcksCol.Add(c, a); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		if err := commitFilesCol.Add(c, f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Commit) Event() (types.Event, error) { return commitEventCol.Get(c) }

func (c *Commit) HomePinned() (bool, error) { return commitHomePinnedCol.Get(c) }

func (c *Commit) SetHomePinned(v bool) error { return commitHomePinnedCol.Set(c, v) }

func (c *Commit) Acks() ([]types.ObjectId, error) { return commitAcksCol.GetAll(c) }

func (c *Commit) Deps() ([]types.ObjectId, error) { return commitDepsCol.GetAll(c) }

func (c *Commit) Files() ([]types.ObjectId, error) { return commitFilesCol.GetAll(c) }

func (c *Commit) Futures() ([]types.ObjectId, error) { return commitFuturesCol.GetAll(c) }

func (c *Commit) AddFuture(id types.ObjectId) error { return commitFuturesCol.Add(c, id) }
