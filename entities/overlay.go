// Package entities implements the persistent records of spec §3 on
// top of storage/kcv: Overlay, Topic, Repo, Commit, Account, Inbox,
// Peer, Invitation and Wallet. Each file hand-writes the column
// descriptors for one entity (spec §9 "prefer one file per entity so
// schema is diffable").
package entities

import (
	"encoding/binary"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

const (
	prefixOverlay    byte = 'o'
	prefixTopic      byte = 't'
	prefixCommit     byte = 'e'
	prefixPeer       byte = 'p'
	prefixInvitation byte = 'i'
	prefixWallet     byte = 'w'
	prefixRepo       byte = 0x10
	prefixAccount    byte = 0x11
	prefixInbox      byte = 0x12
)

func encodeId32[T ~[32]byte](id T) ([]byte, error) {
	b := [32]byte(id)
	return b[:], nil
}

func decodeId32[T ~[32]byte](b []byte) (T, error) {
	var out T
	if len(b) != 32 {
		return out, kcv.ErrSerializationErr
	}
	arr := [32]byte(out)
	copy(arr[:], b)
	return T(arr), nil
}

func encodeBool(v bool) ([]byte, error) {
	if v {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func decodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, kcv.ErrSerializationErr
	}
	return b[0] != 0, nil
}

func encodeU32(v uint32) ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b, nil
}

func decodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, kcv.ErrSerializationErr
	}
	return binary.BigEndian.Uint32(b), nil
}

// overlayTypeTag distinguishes the three OverlayType existential
// encodings on disk.
const (
	overlayTagInner     byte = 0
	overlayTagOuterOnly byte = 1
	overlayTagOuter     byte = 2
)

func encodeOverlayType(t types.OverlayType) ([]byte, error) {
	switch t.Kind {
	case types.OverlayInner:
		return []byte{overlayTagInner}, nil
	case types.OverlayOuterOnly:
		return []byte{overlayTagOuterOnly}, nil
	case types.OverlayOuter:
		b := make([]byte, 33)
		b[0] = overlayTagOuter
		copy(b[1:], t.Inner[:])
		return b, nil
	default:
		return nil, kcv.ErrSerializationErr
	}
}

func decodeOverlayType(b []byte) (types.OverlayType, error) {
	if len(b) == 0 {
		return types.OverlayType{}, kcv.ErrSerializationErr
	}
	switch b[0] {
	case overlayTagInner:
		return types.OverlayType{Kind: types.OverlayInner}, nil
	case overlayTagOuterOnly:
		return types.OverlayType{Kind: types.OverlayOuterOnly}, nil
	case overlayTagOuter:
		if len(b) != 33 {
			return types.OverlayType{}, kcv.ErrSerializationErr
		}
		var inner types.OverlayId
		copy(inner[:], b[1:])
		return types.OverlayType{Kind: types.OverlayOuter, Inner: &inner}, nil
	default:
		return types.OverlayType{}, kcv.ErrSerializationErr
	}
}

var (
	sufOverlayType  byte = 0x01
	sufOverlayRoot  byte = 0x02
)

var overlayTypeCol = kcv.ExistentialColumn[types.OverlayType]{
	Suffix: sufOverlayType,
	Encode: encodeOverlayType,
	Decode: decodeOverlayType,
}

var overlayRootTopicCol = kcv.SingleValueColumn[types.TopicId]{
	Suffix: sufOverlayRoot,
	Encode: encodeId32[types.TopicId],
	Decode: decodeId32[types.TopicId],
}

var overlayBlocksCol = kcv.MultiCounterColumn[types.BlockId]{
	Suffix: 0x03,
	Encode: encodeId32[types.BlockId],
	Decode: decodeId32[types.BlockId],
}

var overlayObjectsCol = kcv.MultiCounterColumn[types.ObjectId]{
	Suffix: 0x04,
	Encode: encodeId32[types.ObjectId],
	Decode: decodeId32[types.ObjectId],
}

// Overlay is the persistent view over prefix 'o' (spec §3 "Overlay").
type Overlay struct {
	kcv.Base
}

func overlayKey(id types.OverlayId) []byte { return id.Bytes() }

// OpenOverlay loads an existing overlay record, failing NotFound if
// its existential column is absent.
func OpenOverlay(s kcv.Storage, id types.OverlayId) (*Overlay, error) {
	o := &Overlay{kcv.Base{S: s, P: prefixOverlay, K: overlayKey(id)}}
	if !overlayTypeCol.Exists(o) {
		return nil, kcv.ErrNotFound
	}
	return o, nil
}

// CreateOverlay creates a new overlay record, failing AlreadyExists
// unless this is a legal OuterOnly -> Outer(inner) upgrade (spec §3
// "upgrading OuterOnly -> Outer(inner) is permitted").
func CreateOverlay(s kcv.Storage, id types.OverlayId, kind types.OverlayType) (*Overlay, error) {
	o := &Overlay{kcv.Base{S: s, P: prefixOverlay, K: overlayKey(id)}}
	var created *Overlay
	err := s.WriteTransaction(func(tx kcv.WriteTx) error {
		ot := &Overlay{kcv.Base{S: txStorage{tx}, P: prefixOverlay, K: overlayKey(id)}}
		if !overlayTypeCol.Exists(ot) {
			if err := overlayTypeCol.Create(ot, kind); err != nil {
				return err
			}
			created = o
			return nil
		}
		// Already exists: only a legal OuterOnly -> Outer(inner) upgrade
		// is allowed, and it must be atomic with respect to the
		// existential column (spec §9 "Overlay upgrade atomicity").
		current, err := overlayTypeCol.Get(ot)
		if err != nil {
			return err
		}
		if current.Kind != types.OverlayOuterOnly || kind.Kind != types.OverlayOuter {
			return kcv.ErrAlreadyExists
		}
		if err := tx.Replace(ot.Prefix(), ot.Key(), &sufOverlayType, mustEncodeOverlayType(kind)); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func mustEncodeOverlayType(t types.OverlayType) []byte {
	b, _ := encodeOverlayType(t)
	return b
}

func (o *Overlay) Type() (types.OverlayType, error) { return overlayTypeCol.Get(o) }

func (o *Overlay) RootTopic() (types.TopicId, error) { return overlayRootTopicCol.Get(o) }

func (o *Overlay) SetRootTopic(id types.TopicId) error { return overlayRootTopicCol.Set(o, id) }

func (o *Overlay) IncrBlockRef(tx kcv.WriteTx, id types.BlockId) error {
	return overlayBlocksCol.Incr(tx, o.Prefix(), o.Key(), id)
}

func (o *Overlay) DecrBlockRef(tx kcv.WriteTx, id types.BlockId) error {
	return overlayBlocksCol.Decr(tx, o.Prefix(), o.Key(), id)
}

func (o *Overlay) BlockRefCount(id types.BlockId) (uint64, error) {
	return overlayBlocksCol.Get(o, id)
}

func (o *Overlay) IncrObjectRef(tx kcv.WriteTx, id types.ObjectId) error {
	return overlayObjectsCol.Incr(tx, o.Prefix(), o.Key(), id)
}

func (o *Overlay) DecrObjectRef(tx kcv.WriteTx, id types.ObjectId) error {
	return overlayObjectsCol.Decr(tx, o.Prefix(), o.Key(), id)
}

// Del removes every column of the overlay record atomically (spec §3
// "Lifecycle ... deletion is explicit and must remove every suffix
// listed in that entity's property set atomically").
func (o *Overlay) Del(s kcv.Storage) error {
	return s.WriteTransaction(func(tx kcv.WriteTx) error {
		if err := tx.DelAll(o.Prefix(), o.Key(), []byte{sufOverlayType, sufOverlayRoot}); err != nil {
			return err
		}
		for _, suf := range []byte{overlayBlocksCol.Suffix, overlayObjectsCol.Suffix} {
			if err := tx.DelAllValues(o.Prefix(), o.Key(), &suf); err != nil {
				return err
			}
		}
		return nil
	})
}

// txStorage adapts a WriteTx to the kcv.Storage interface so column
// descriptors (which take a Model whose Storage() returns a full
// kcv.Storage) can also operate against an in-flight transaction when
// an entity method needs transactional atomicity across columns.
type txStorage struct{ kcv.WriteTx }

func (t txStorage) WriteTransaction(fn func(tx kcv.WriteTx) error) error { return fn(t.WriteTx) }
func (t txStorage) Close() error                                        { return nil }
