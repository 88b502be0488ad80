package entities

import (
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

// InboxRef identifies one of a user's registered inboxes (spec §3
// "Account ... multi inboxes[(inbox_pub, OverlayId)]").
type InboxRef struct {
	InboxPub types.PubKey
	Overlay  types.OverlayId
}

func encodeInboxRef(r InboxRef) ([]byte, error) {
	b := make([]byte, 0, 64)
	b = append(b, r.InboxPub[:]...)
	b = append(b, r.Overlay[:]...)
	return b, nil
}

func decodeInboxRef(b []byte) (InboxRef, error) {
	var r InboxRef
	if len(b) != 64 {
		return r, kcv.ErrSerializationErr
	}
	copy(r.InboxPub[:], b[0:32])
	copy(r.Overlay[:], b[32:64])
	return r, nil
}

const sufAccountInboxes byte = 0x01

var accountInboxesCol = kcv.MultiValueColumn[InboxRef]{
	Suffix: sufAccountInboxes,
	Encode: encodeInboxRef,
	Decode: decodeInboxRef,
}

// Account is the persistent view keyed directly by UserId (spec §3
// "Account (no prefix, key=UserId)").
type Account struct {
	kcv.Base
	User types.UserId
}

func OpenOrCreateAccount(s kcv.Storage, user types.UserId) *Account {
	return &Account{kcv.Base{S: s, P: prefixAccount, K: user.Bytes()}, user}
}

func (a *Account) AddInbox(ref InboxRef) error { return accountInboxesCol.Add(a, ref) }

func (a *Account) Inboxes() ([]InboxRef, error) { return accountInboxesCol.GetAll(a) }
