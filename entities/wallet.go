package entities

import (
	"crypto/rand"

	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

// WalletKeySlot selects which derived symmetric key a wallet record
// holds (spec §3 "Wallet ... derived symmetric keys per user, per
// overlay, and special slots accounts, peers, blocks, core").
type WalletKeySlot byte

const (
	WalletSlotAccounts WalletKeySlot = iota
	WalletSlotPeers
	WalletSlotBlocks
	WalletSlotCore
	WalletSlotUser
	WalletSlotOverlay
)

func encodeSymKey(k [32]byte) ([]byte, error) { return k[:], nil }

func decodeSymKey(b []byte) ([32]byte, error) {
	var k [32]byte
	if len(b) != 32 {
		return k, kcv.ErrSerializationErr
	}
	copy(k[:], b)
	return k, nil
}

var walletSpecialKeyCol = kcv.SingleValueColumn[[32]byte]{Suffix: 0x01, Encode: encodeSymKey, Decode: decodeSymKey}

var walletUserKeyCol = kcv.MultiMapColumn[types.UserId, [32]byte]{
	Suffix:    0x02,
	EncodeKey: encodeId32[types.UserId], DecodeKey: decodeId32[types.UserId],
	EncodeVal: encodeSymKey, DecodeVal: decodeSymKey,
}

var walletOverlayKeyCol = kcv.MultiMapColumn[types.OverlayId, [32]byte]{
	Suffix:    0x03,
	EncodeKey: encodeId32[types.OverlayId], DecodeKey: decodeId32[types.OverlayId],
	EncodeVal: encodeSymKey, DecodeVal: decodeSymKey,
}

// Wallet is the single persistent record over prefix 'w' holding
// every derived key the broker needs (spec §3 "Wallet").
type Wallet struct {
	kcv.Base
}

var walletSingletonKey = []byte("wallet")

func OpenWallet(s kcv.Storage) *Wallet {
	return &Wallet{kcv.Base{S: s, P: prefixWallet, K: walletSingletonKey}}
}

func randomKey() ([32]byte, error) {
	var k [32]byte
	_, err := rand.Read(k[:])
	return k, err
}

// GetOrCreateSpecialKey is transactional and idempotent: it returns
// the existing key for slot, generating and persisting a fresh random
// one the first time (spec §3 "get_or_create_X_key is transactional
// and idempotent").
func (w *Wallet) GetOrCreateSpecialKey(s kcv.Storage, slot WalletKeySlot) ([32]byte, error) {
	var result [32]byte
	err := s.WriteTransaction(func(tx kcv.WriteTx) error {
		wt := &Wallet{kcv.Base{S: txStorage{tx}, P: prefixWallet, K: slotKey(slot)}}
		if k, err := walletSpecialKeyCol.Get(wt); err == nil {
			result = k
			return nil
		}
		k, err := randomKey()
		if err != nil {
			return err
		}
		if err := walletSpecialKeyCol.Set(wt, k); err != nil {
			return err
		}
		result = k
		return nil
	})
	return result, err
}

func slotKey(slot WalletKeySlot) []byte {
	return append(append([]byte{}, walletSingletonKey...), byte(slot))
}

// GetOrCreateUserKey returns the per-user wallet key, generating and
// persisting a fresh random one the first time.
func (w *Wallet) GetOrCreateUserKey(s kcv.Storage, user types.UserId) ([32]byte, error) {
	var result [32]byte
	err := s.WriteTransaction(func(tx kcv.WriteTx) error {
		wt := &Wallet{kcv.Base{S: txStorage{tx}, P: prefixWallet, K: walletSingletonKey}}
		if k, err := walletUserKeyCol.Get(wt, user); err == nil {
			result = k
			return nil
		}
		k, err := randomKey()
		if err != nil {
			return err
		}
		if err := walletUserKeyCol.Set(wt, user, k); err != nil {
			return err
		}
		result = k
		return nil
	})
	return result, err
}

// GetOrCreateOverlayKey returns the per-overlay wallet key, generating
// and persisting a fresh random one the first time.
func (w *Wallet) GetOrCreateOverlayKey(s kcv.Storage, overlay types.OverlayId) ([32]byte, error) {
	var result [32]byte
	err := s.WriteTransaction(func(tx kcv.WriteTx) error {
		wt := &Wallet{kcv.Base{S: txStorage{tx}, P: prefixWallet, K: walletSingletonKey}}
		if k, err := walletOverlayKeyCol.Get(wt, overlay); err == nil {
			result = k
			return nil
		}
		k, err := randomKey()
		if err != nil {
			return err
		}
		if err := walletOverlayKeyCol.Set(wt, overlay, k); err != nil {
			return err
		}
		result = k
		return nil
	})
	return result, err
}
