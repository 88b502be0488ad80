// Package actors implements one Responder per request kind (spec
// §4.F "Actor Dispatch"), grouped into files by the broker concern
// they front, mirroring ng-net/src/actors' per-concern layout.
package actors

import (
	"encoding/binary"

	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// requireAdmin reports whether fsm may invoke an admin-only operation:
// it must have declared Start(Admin) and its authenticated Noise
// static key must be a broker-registered admin (spec §6 "Admin
// requires the requester's public key to equal the configured
// admin_user"). Declaring the Admin variant alone is not sufficient —
// that only states intent, the broker's user index is what actually
// authorizes it.
func requireAdmin(fsm *netfsm.FSM) bool {
	return fsm.Variant() == netfsm.StartAdmin && fsm.Broker().IsAdmin(fsm.PeerID())
}

// denyAdmin sends the terminal access-denied reply and closes the
// connection (spec §8 scenario 3: a failed admin check ends the
// session, it does not leave the connection open for a retry).
func denyAdmin(fsm *netfsm.FSM, id int64) {
	fsm.SendError(id, types.ErrAccessDenied)
	fsm.Close()
}

func putId(buf []byte, id [32]byte) []byte { return append(buf, id[:]...) }

func takeId(b []byte) ([32]byte, []byte, error) {
	var id [32]byte
	if len(b) < 32 {
		return id, nil, types.ErrInvalidRequest
	}
	copy(id[:], b[:32])
	return id, b[32:], nil
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func takeU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, types.ErrInvalidRequest
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func putU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func takeU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, types.ErrInvalidRequest
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func putBytes(buf []byte, v []byte) []byte {
	buf = putU32(buf, uint32(len(v)))
	return append(buf, v...)
}

func takeBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := takeU32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, types.ErrInvalidRequest
	}
	return rest[:n], rest[n:], nil
}

func putBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func takeBool(b []byte) (bool, []byte, error) {
	if len(b) < 1 {
		return false, nil, types.ErrInvalidRequest
	}
	return b[0] != 0, b[1:], nil
}

func putIdList(buf []byte, ids [][32]byte) []byte {
	buf = putU32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = putId(buf, id)
	}
	return buf
}

func takeIdList(b []byte) ([][32]byte, []byte, error) {
	n, rest, err := takeU32(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([][32]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		var id [32]byte
		id, rest, err = takeId(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, id)
	}
	return out, rest, nil
}
