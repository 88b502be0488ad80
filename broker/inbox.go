package broker

import (
	"crypto/ed25519"

	"github.com/lukechampine/blake3"

	"nextgraph.dev/broker/entities"
	"nextgraph.dev/broker/types"
)

// InboxPost appends an InboxMsg to the (toInbox, toOverlay) inbox,
// keyed by (sec, nano, blake64(body)) (spec §4.D "inbox_post").
func (b *Broker) InboxPost(toInbox types.PubKey, toOverlay types.OverlayId, msg types.InboxMsg, sec uint64, nano uint32) error {
	inbox := entities.OpenOrCreateInbox(b.kcvStore, toOverlay, toInbox)
	key := entities.MsgKey{Sec: sec, Nano: nano, BodyHash: blake64(msg.Body)}
	if err := inbox.Post(key, msg); err != nil {
		return types.ErrBrokerError
	}
	return nil
}

func blake64(body types.InboxMsgBody) uint64 {
	sum := blake3.Sum256(body)
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v
}

// InboxRegistration is the signed challenge a client presents to
// register one of its inboxes (spec §4.D "inbox_register").
type InboxRegistration struct {
	InboxPub  types.PubKey
	Overlay   types.OverlayId
	Challenge []byte
	Signature []byte
}

// InboxRegister verifies reg.Signature = Ed25519(reg.Challenge,
// inbox_priv) and, on success, records (inbox_pub, overlay) under the
// user's account and user as a reader of the inbox (spec §4.D
// "inbox_register").
func (b *Broker) InboxRegister(user types.UserId, reg InboxRegistration) error {
	if !ed25519.Verify(ed25519.PublicKey(reg.InboxPub[:]), reg.Challenge, reg.Signature) {
		return types.ErrInvalidSignature
	}
	account := entities.OpenOrCreateAccount(b.kcvStore, user)
	if err := account.AddInbox(entities.InboxRef{InboxPub: reg.InboxPub, Overlay: reg.Overlay}); err != nil {
		return types.ErrBrokerError
	}
	inbox := entities.OpenOrCreateInbox(b.kcvStore, reg.Overlay, reg.InboxPub)
	if err := inbox.AddReader(user); err != nil {
		return types.ErrBrokerError
	}
	return nil
}

// InboxPopForUser removes and returns the oldest message across
// user's registered inboxes. It is not fair across inboxes: it walks
// the account's inbox set in storage key order (inbox_pub, then
// overlay) and returns from the first inbox that has a message, so an
// earlier inbox is always drained before a later one is read.
func (b *Broker) InboxPopForUser(user types.UserId) (*types.InboxMsg, error) {
	account := entities.OpenOrCreateAccount(b.kcvStore, user)
	refs, err := account.Inboxes()
	if err != nil {
		return nil, types.ErrBrokerError
	}
	for _, ref := range refs {
		inbox := entities.OpenOrCreateInbox(b.kcvStore, ref.Overlay, ref.InboxPub)
		_, msg, err := inbox.TakeFirst()
		if err == nil {
			return &msg, nil
		}
	}
	return nil, types.ErrNotFound
}
