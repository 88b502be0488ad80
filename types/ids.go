// Package types holds the wire-level identifiers, messages and error
// taxonomy shared by every broker subsystem.
package types

import (
	"encoding/hex"
)

func hex32(b [32]byte) string { return hex.EncodeToString(b[:]) }

func zero32(b [32]byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// PubKey is a 32-byte Ed25519 public key. UserId and PeerId are both
// public-key-shaped so they alias it directly.
type PubKey [32]byte

func (k PubKey) String() string  { return hex32(k) }
func (k PubKey) Bytes() []byte   { return k[:] }
func (k PubKey) IsZero() bool    { return zero32(k) }

// UserId identifies an account holder. Peer identifies a broker or
// client endpoint. Both are Ed25519 public keys.
type UserId = PubKey
type PeerId = PubKey

// OverlayId is the canonical 32-byte identifier of an overlay
// namespace (either an inner overlay's own id, or the derived id of
// an outer overlay).
type OverlayId [32]byte

func (o OverlayId) String() string { return hex32(o) }
func (o OverlayId) Bytes() []byte  { return o[:] }
func (o OverlayId) IsZero() bool   { return zero32(o) }

// RepoHash identifies a repository within an overlay.
type RepoHash [32]byte

func (r RepoHash) String() string { return hex32(r) }
func (r RepoHash) Bytes() []byte  { return r[:] }
func (r RepoHash) IsZero() bool   { return zero32(r) }

// RepoId is an alias kept for call sites that talk about a repo
// outside of the overlay-scoped storage key.
type RepoId = RepoHash

// BranchId identifies a branch within a repo.
type BranchId [32]byte

func (b BranchId) String() string { return hex32(b) }
func (b BranchId) Bytes() []byte  { return b[:] }
func (b BranchId) IsZero() bool   { return zero32(b) }

// TopicId identifies an append-only stream within an overlay.
type TopicId [32]byte

func (t TopicId) String() string { return hex32(t) }
func (t TopicId) Bytes() []byte  { return t[:] }
func (t TopicId) IsZero() bool   { return zero32(t) }

// BlockId is the BLAKE3 digest of a block's canonical encoding.
type BlockId [32]byte

func (b BlockId) String() string { return hex32(b) }
func (b BlockId) Bytes() []byte  { return b[:] }
func (b BlockId) IsZero() bool   { return zero32(b) }

// ObjectId identifies a commit or other content-addressed object
// built from one or more blocks.
type ObjectId [32]byte

func (o ObjectId) String() string { return hex32(o) }
func (o ObjectId) Bytes() []byte  { return o[:] }
func (o ObjectId) IsZero() bool   { return zero32(o) }

// InvitationCode is the 32 random bytes a registration link is keyed
// by.
type InvitationCode [32]byte

func (c InvitationCode) String() string { return hex32(c) }
func (c InvitationCode) Bytes() []byte  { return c[:] }

// RendezvousId is the symmetric 32-byte token a wallet export
// rendezvous is keyed by.
type RendezvousId [32]byte

func (r RendezvousId) String() string { return hex32(r) }
func (r RendezvousId) Bytes() []byte  { return r[:] }
