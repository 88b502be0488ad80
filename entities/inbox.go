package entities

import (
	"encoding/binary"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

// MsgKey orders inbox messages by (sec, nano, body_hash) per spec §3
// "msgs[(sec:u64,nano:u32,body_hash:u64)] -> InboxMsg (FIFO by key
// tuple)". Its encoding is big-endian so lexicographic byte order on
// the KCV key tail equals tuple order, which is what
// MultiMapColumn.TakeFirst relies on for FIFO delivery.
type MsgKey struct {
	Sec      uint64
	Nano     uint32
	BodyHash uint64
}

func encodeMsgKey(k MsgKey) ([]byte, error) {
	b := make([]byte, 20)
	binary.BigEndian.PutUint64(b[0:8], k.Sec)
	binary.BigEndian.PutUint32(b[8:12], k.Nano)
	binary.BigEndian.PutUint64(b[12:20], k.BodyHash)
	return b, nil
}

func decodeMsgKey(b []byte) (MsgKey, error) {
	var k MsgKey
	if len(b) != 20 {
		return k, kcv.ErrSerializationErr
	}
	k.Sec = binary.BigEndian.Uint64(b[0:8])
	k.Nano = binary.BigEndian.Uint32(b[8:12])
	k.BodyHash = binary.BigEndian.Uint64(b[12:20])
	return k, nil
}

func encodeInboxMsg(m types.InboxMsg) ([]byte, error) {
	b := make([]byte, 0, 4+len(m.Body)+32)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(m.Body)))
	b = append(b, l[:]...)
	b = append(b, m.Body...)
	b = append(b, m.ToOverlay[:]...)
	return b, nil
}

func decodeInboxMsg(b []byte) (types.InboxMsg, error) {
	var m types.InboxMsg
	if len(b) < 4 {
		return m, kcv.ErrSerializationErr
	}
	bodyLen := binary.BigEndian.Uint32(b[0:4])
	if len(b) != 4+int(bodyLen)+32 {
		return m, kcv.ErrSerializationErr
	}
	m.Body = append(types.InboxMsgBody{}, b[4:4+bodyLen]...)
	copy(m.ToOverlay[:], b[4+bodyLen:])
	return m, nil
}

const (
	sufInboxMsgs    byte = 0x01
	sufInboxReaders byte = 0x02
)

var inboxMsgsCol = kcv.MultiMapColumn[MsgKey, types.InboxMsg]{
	Suffix:    sufInboxMsgs,
	EncodeKey: encodeMsgKey, DecodeKey: decodeMsgKey,
	EncodeVal: encodeInboxMsg, DecodeVal: decodeInboxMsg,
}

var inboxReadersCol = kcv.MultiValueColumn[types.UserId]{
	Suffix: sufInboxReaders,
	Encode: encodeId32[types.UserId],
	Decode: decodeId32[types.UserId],
}

// Inbox is the persistent view keyed by overlay||inbox_pub (spec §3
// "Inbox (no prefix, key=OverlayId||InboxPub)").
type Inbox struct {
	kcv.Base
	Overlay  types.OverlayId
	InboxPub types.PubKey
}

func inboxKey(overlay types.OverlayId, inboxPub types.PubKey) []byte {
	k := make([]byte, 0, 64)
	k = append(k, overlay.Bytes()...)
	k = append(k, inboxPub.Bytes()...)
	return k
}

func OpenOrCreateInbox(s kcv.Storage, overlay types.OverlayId, inboxPub types.PubKey) *Inbox {
	return &Inbox{kcv.Base{S: s, P: prefixInbox, K: inboxKey(overlay, inboxPub)}, overlay, inboxPub}
}

// Post appends a message under key (sec, nano, body_hash); ordering
// invariant is maintained by TakeFirst reading the smallest key
// (spec §4.G "Inbox Engine").
func (i *Inbox) Post(key MsgKey, msg types.InboxMsg) error {
	return inboxMsgsCol.Set(i, key, msg)
}

// TakeFirst deletes and returns the oldest message, failing NotFound
// if the inbox is empty (spec §8 "take_first returns the smallest key
// and deletes the entry in one transaction").
func (i *Inbox) TakeFirst() (MsgKey, types.InboxMsg, error) {
	return inboxMsgsCol.TakeFirst(i)
}

func (i *Inbox) AddReader(user types.UserId) error { return inboxReadersCol.Add(i, user) }

func (i *Inbox) Readers() ([]types.UserId, error) { return inboxReadersCol.GetAll(i) }

func (i *Inbox) HasReader(user types.UserId) bool { return inboxReadersCol.Has(i, user) }
