package entities

import (
	"encoding/binary"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

func encodePeerAdvert(a types.PeerAdvert) ([]byte, error) {
	b := make([]byte, 0, 32+4+4+64)
	b = append(b, a.Peer[:]...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], a.Version)
	b = append(b, v[:]...)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(a.Addresses)))
	b = append(b, n[:]...)
	for _, addr := range a.Addresses {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(addr)))
		b = append(b, l[:]...)
		b = append(b, addr...)
	}
	b = append(b, a.Signature[:]...)
	return b, nil
}

func decodePeerAdvert(b []byte) (types.PeerAdvert, error) {
	var a types.PeerAdvert
	if len(b) < 32+4+4+64 {
		return a, kcv.ErrSerializationErr
	}
	copy(a.Peer[:], b[0:32])
	a.Version = binary.BigEndian.Uint32(b[32:36])
	count := binary.BigEndian.Uint32(b[36:40])
	pos := 40
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(b) {
			return a, kcv.ErrSerializationErr
		}
		l := binary.BigEndian.Uint32(b[pos : pos+4])
		pos += 4
		if pos+int(l) > len(b) {
			return a, kcv.ErrSerializationErr
		}
		a.Addresses = append(a.Addresses, string(b[pos:pos+int(l)]))
		pos += int(l)
	}
	if pos+64 != len(b) {
		return a, kcv.ErrSerializationErr
	}
	copy(a.Signature[:], b[pos:])
	return a, nil
}

const (
	sufPeerVersion byte = 0x01
	sufPeerAdvert  byte = 0x02
)

var peerVersionCol = kcv.SingleValueColumn[uint32]{Suffix: sufPeerVersion, Encode: encodeU32, Decode: decodeU32}

var peerAdvertCol = kcv.SingleValueColumn[types.PeerAdvert]{
	Suffix: sufPeerAdvert, Encode: encodePeerAdvert, Decode: decodePeerAdvert,
}

// Peer is the persistent view over prefix 'p', key=PeerId (spec §3
// "Peer").
type Peer struct {
	kcv.Base
	Id types.PeerId
}

func OpenOrCreatePeer(s kcv.Storage, id types.PeerId) *Peer {
	return &Peer{kcv.Base{S: s, P: prefixPeer, K: id.Bytes()}, id}
}

func (p *Peer) Advert() (types.PeerAdvert, error) { return peerAdvertCol.Get(p) }

// UpdateAdvert applies advert iff advert.Version is strictly greater
// than the currently stored version; otherwise it is a no-op (spec §3
// "Update rule: update iff advert.version > current.version; else
// no-op").
func (p *Peer) UpdateAdvert(s kcv.Storage, advert types.PeerAdvert) error {
	return s.WriteTransaction(func(tx kcv.WriteTx) error {
		pt := &Peer{kcv.Base{S: txStorage{tx}, P: prefixPeer, K: p.Key()}, p.Id}
		cur, err := peerVersionCol.Get(pt)
		if err == nil && advert.Version <= cur {
			return nil
		}
		if err := peerVersionCol.Set(pt, advert.Version); err != nil {
			return err
		}
		return peerAdvertCol.Set(pt, advert)
	})
}
