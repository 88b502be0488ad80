package types

import (
	"crypto/ed25519"
	"fmt"
)

// OverlayKind distinguishes the three overlay existential variants of
// spec §3 ("Overlay ... Existential column type").
type OverlayKind int

const (
	OverlayInner OverlayKind = iota
	OverlayOuter
	OverlayOuterOnly
)

// OverlayType is the existential value stored under an Overlay
// record's TYPE column. Outer carries the id of its inner
// counterpart once one exists.
type OverlayType struct {
	Kind  OverlayKind
	Inner *OverlayId // set iff Kind == OverlayOuter
}

func (t OverlayType) String() string {
	switch t.Kind {
	case OverlayInner:
		return "Inner"
	case OverlayOuterOnly:
		return "OuterOnly"
	case OverlayOuter:
		return fmt.Sprintf("Outer(%s)", t.Inner)
	default:
		return "unknown"
	}
}

// PublisherAdvert is a signed claim that a peer may publish to a
// topic (GLOSSARY "Publisher Advert"). The signature covers
// (Topic || Broker) and is produced by the topic's publisher key;
// VerifyForBroker checks it was issued for this broker's peer id.
type PublisherAdvert struct {
	Topic     TopicId
	Broker    PeerId
	PublicKey PubKey // the topic publisher's public key
	Signature [64]byte
}

func (a *PublisherAdvert) signedBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, a.Topic[:]...)
	buf = append(buf, a.Broker[:]...)
	return buf
}

// Sign produces the detached signature over (topic || broker) using
// the topic publisher's private key.
func (a *PublisherAdvert) Sign(priv ed25519.PrivateKey) {
	sig := ed25519.Sign(priv, a.signedBytes())
	copy(a.Signature[:], sig)
}

// VerifyForBroker checks the advert was signed for serverPeerID and
// that the signature is valid under PublicKey (spec §4.D: "verifies
// every PublisherAdvert against the server peer id and refuses the
// whole request on any failure").
func (a *PublisherAdvert) VerifyForBroker(serverPeerID PeerId) error {
	if a.Broker != serverPeerID {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(a.PublicKey[:]), a.signedBytes(), a.Signature[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// PeerAdvert is a signed, versioned claim about a peer's network
// presence (spec §3 "Peer ... advert:PeerAdvert").
type PeerAdvert struct {
	Peer      PeerId
	Version   uint32
	Addresses []string
	Signature [64]byte
}

// InvitationKind is the existential variant of an Invitation record
// (spec §3 "Invitation").
type InvitationKind int

const (
	InvitationUnique InvitationKind = iota
	InvitationMulti
	InvitationAdmin
)

// InboxMsgBody is the opaque payload of one inbox message.
type InboxMsgBody []byte

// InboxMsg is the envelope persisted per spec §6 ("Inbox message
// envelope").
type InboxMsg struct {
	Body      InboxMsgBody
	ToOverlay OverlayId
}

// Event is the content published to a topic (spec §4.D "dispatch_event").
// It carries the object id of the commit it advances the topic to,
// the publisher's monotonic sequence number, and the encrypted
// commit payload blocks travel separately through the block store.
type Event struct {
	Topic   TopicId
	Commit  ObjectId
	Peer    PeerId
	Seq     uint64
	Content []byte
}

// ObjectRef pairs an object id with the overlay it lives in, used by
// BranchInfo.CurrentHeads (spec §3 "Branch / Repo (in-memory view)").
type ObjectRef struct {
	Id      ObjectId
	Overlay OverlayId
}

// Permission is a member capability on a Repo (spec §3 "Repo (in-memory view)").
type Permission int

const (
	PermRead Permission = iota
	PermWrite
	PermAdmin
)

// OverlayAccessKind distinguishes how a pin_repo request describes
// overlay access (spec §4.D "pin_repo_write"/"pin_repo_read").
type OverlayAccessKind int

const (
	AccessReadOnly OverlayAccessKind = iota
	AccessReadWrite
	AccessWriteOnly
)

// OverlayAccess is the tagged union a client presents when pinning a
// repo: either a single read-only overlay, a (write,read) pair, or a
// write-only overlay.
type OverlayAccess struct {
	Kind  OverlayAccessKind
	Write OverlayId // set iff Kind != AccessReadOnly
	Read  OverlayId // set iff Kind != AccessWriteOnly
}

// Overlay returns the overlay id a client protocol request is framed
// against: the write overlay when one is present, else the read one.
func (a OverlayAccess) Overlay() OverlayId {
	if a.Kind == AccessReadOnly {
		return a.Read
	}
	return a.Write
}
