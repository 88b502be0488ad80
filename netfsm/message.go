package netfsm

import (
	"encoding/binary"

	"nextgraph.dev/broker/types"
)

// Message is the decoded form of one `*MessageV0 { id, result, content }`
// frame (spec §6 "Post-handshake ProtocolMessage"). Kind tags which
// request variant content decodes as; Kind is zero for a pure
// response/event frame carrying only id/result/content.
type Message struct {
	Id      int64
	Result  types.ServerError
	Kind    RequestKind
	Content []byte
}

// RequestKind tags the decoded request held in a Message's Content,
// resolved by the dispatcher to a Responder (spec §4.F).
type RequestKind uint16

const (
	KindProbe RequestKind = iota
	KindAddUser
	KindDelUser
	KindListUsers
	KindAddInvitation
	KindRemoveInvitation
	KindListInvitations
	KindPinRepoWrite
	KindPinRepoRead
	KindTopicSub
	KindTopicUnsub
	KindPublishEvent
	KindTopicSyncReq
	KindInboxRegister
	KindInboxPost
	KindInboxPop
	KindPutWalletExport
	KindGetWalletExport
	KindWaitForWalletAtRendezvous
	KindPutWalletAtRendezvous
	KindAppSessionStart
	KindAppSessionStop
	KindAppProcessRequest
)

// EncodeMessage serializes a response/event frame. content is the
// already-encoded reply payload, or nil for a bare status frame.
func EncodeMessage(id int64, result types.ServerError, content []byte) []byte {
	buf := make([]byte, 10+len(content))
	binary.BigEndian.PutUint64(buf[0:8], uint64(id))
	binary.BigEndian.PutUint16(buf[8:10], uint16(result))
	copy(buf[10:], content)
	return buf
}

// EncodeRequest serializes a client-to-server request frame: id,
// kind, and opaque kind-specific content.
func EncodeRequest(id int64, kind RequestKind, content []byte) []byte {
	buf := make([]byte, 10+len(content))
	binary.BigEndian.PutUint64(buf[0:8], uint64(id))
	binary.BigEndian.PutUint16(buf[8:10], uint16(kind))
	copy(buf[10:], content)
	return buf
}

// DecodeMessage parses a request frame's fixed id/kind header, per
// spec §6's `*MessageV0 { id:i64, result:u16, content }` shape reused
// for both directions (the `result` field doubles as `kind` on the
// request side, since a request never carries a status code).
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < 10 {
		return Message{}, types.ProtoSerializationError
	}
	id := int64(binary.BigEndian.Uint64(b[0:8]))
	kind := binary.BigEndian.Uint16(b[8:10])
	return Message{Id: id, Kind: RequestKind(kind), Content: b[10:]}, nil
}

// DecodeResponse parses a response/event frame built by EncodeMessage,
// reading the same fixed header with its second field as a
// types.ServerError result code instead of a RequestKind.
func DecodeResponse(b []byte) (Message, error) {
	if len(b) < 10 {
		return Message{}, types.ProtoSerializationError
	}
	id := int64(binary.BigEndian.Uint64(b[0:8]))
	result := binary.BigEndian.Uint16(b[8:10])
	return Message{Id: id, Result: types.ServerError(result), Content: b[10:]}, nil
}
