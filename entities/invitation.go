package entities

import (
	"encoding/binary"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

// InvitationValue is the encoded (kind, expiry, memo?) scalar (spec
// §3 "Invitation ... Scalar (kind, expiry:u32, memo:string?)").
type InvitationValue struct {
	Kind   types.InvitationKind
	Expiry uint32
	Memo   *string
}

func encodeInvitation(v InvitationValue) ([]byte, error) {
	b := make([]byte, 0, 1+4+1+len(derefMemo(v.Memo)))
	b = append(b, byte(v.Kind))
	var e [4]byte
	binary.BigEndian.PutUint32(e[:], v.Expiry)
	b = append(b, e[:]...)
	if v.Memo == nil {
		b = append(b, 0)
	} else {
		b = append(b, 1)
		b = append(b, *v.Memo...)
	}
	return b, nil
}

func derefMemo(m *string) string {
	if m == nil {
		return ""
	}
	return *m
}

func decodeInvitation(b []byte) (InvitationValue, error) {
	var v InvitationValue
	if len(b) < 6 {
		return v, kcv.ErrSerializationErr
	}
	v.Kind = types.InvitationKind(b[0])
	v.Expiry = binary.BigEndian.Uint32(b[1:5])
	if b[5] == 1 {
		memo := string(b[6:])
		v.Memo = &memo
	}
	return v, nil
}

const sufInvitation byte = 0x01

var invitationCol = kcv.SingleValueColumn[InvitationValue]{
	Suffix: sufInvitation, Encode: encodeInvitation, Decode: decodeInvitation,
}

// Invitation is the persistent view over prefix 'i', key=32-byte code
// (spec §3 "Invitation").
type Invitation struct {
	kcv.Base
	Code types.InvitationCode
}

func invitationKey(code types.InvitationCode) []byte { return code.Bytes() }

func OpenInvitation(s kcv.Storage, code types.InvitationCode) (*Invitation, error) {
	inv := &Invitation{kcv.Base{S: s, P: prefixInvitation, K: invitationKey(code)}, code}
	if _, err := invitationCol.Get(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func CreateInvitation(s kcv.Storage, code types.InvitationCode, kind types.InvitationKind, expiry uint32, memo *string) (*Invitation, error) {
	inv := &Invitation{kcv.Base{S: s, P: prefixInvitation, K: invitationKey(code)}, code}
	if _, err := invitationCol.Get(inv); err == nil {
		return nil, kcv.ErrAlreadyExists
	}
	if err := invitationCol.Set(inv, InvitationValue{Kind: kind, Expiry: expiry, Memo: memo}); err != nil {
		return nil, err
	}
	return inv, nil
}

// Value returns the stored (kind, expiry, memo). Expiry comparison
// against wall-clock time belongs to the broker layer (spec §4.D
// "reading an expired invitation must return Expired").
func (i *Invitation) Value() (InvitationValue, error) { return invitationCol.Get(i) }

func (i *Invitation) Del(s kcv.Storage) error {
	return invitationCol.Del(i)
}

// InvitationEntry pairs a code with its decoded value for ListInvitations.
type InvitationEntry struct {
	Code  types.InvitationCode
	Value InvitationValue
}

// ListInvitations scans every invitation record (spec §4.D
// "list_invitations(admin?,unique?,multi?)"); filtering by kind is
// left to the caller.
func ListInvitations(s kcv.Storage) ([]InvitationEntry, error) {
	kvs, err := s.GetAllKeysAndValues(prefixInvitation, []byte{}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]InvitationEntry, 0, len(kvs))
	for _, kv := range kvs {
		if len(kv.Key) != 33 || kv.Key[32] != sufInvitation {
			continue
		}
		var code types.InvitationCode
		copy(code[:], kv.Key[:32])
		v, err := decodeInvitation(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, InvitationEntry{Code: code, Value: v})
	}
	return out, nil
}
