package kcv

import (
	"bytes"
	"crypto/rand"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
)

// BoltStorage is the bbolt-backed Storage implementation (spec §4.A
// "implementations may use an encrypted-env backend"). One bucket is
// created per prefix byte on first use; values are sealed with
// ChaCha20-Poly1305 under the store's master key before they ever
// reach disk. Keys are left in cleartext so bbolt's native
// lexicographic ordering keeps every prefix scan in this package
// working unmodified, matching the comparator note in spec §4.A.
type BoltStorage struct {
	db   *bolt.DB
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

const metadataBucket = "metadata"
const versionKey = "version"
const storeVersion = 0

// Open creates or loads the bolt-backed KCV store at path, under the
// given 32-byte master key.
func Open(path string, masterKey [32]byte) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(masterKey[:])
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &BoltStorage{db: db, aead: aead}
	if err := db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if v := bkt.Get([]byte(versionKey)); v != nil {
			if len(v) != 1 || v[0] != storeVersion {
				return fmt.Errorf("kcv: incompatible store version: %d", v[0])
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{storeVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStorage) Close() error { return s.db.Close() }

func (s *BoltStorage) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *BoltStorage) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrDataCorruption
	}
	pt, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, ErrDataCorruption
	}
	return pt, nil
}

func fullKey(key []byte, suffix *byte) []byte {
	if suffix == nil {
		return key
	}
	out := make([]byte, len(key)+1)
	copy(out, key)
	out[len(key)] = *suffix
	return out
}

// boltTx adapts a single *bolt.Tx (read-only or writable) to WriteTx.
type boltTx struct {
	tx   *bolt.Tx
	s    *BoltStorage
}

func (t *boltTx) bucket(prefix byte, create bool) (*bolt.Bucket, error) {
	name := []byte{prefix}
	if create {
		return t.tx.CreateBucketIfNotExists(name)
	}
	b := t.tx.Bucket(name)
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (t *boltTx) Get(prefix byte, key []byte, suffix *byte) ([]byte, error) {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return nil, err
	}
	v := b.Get(fullKey(key, suffix))
	if v == nil {
		return nil, ErrNotFound
	}
	return t.s.open(v)
}

func (t *boltTx) GetAllPropertiesOfKey(prefix byte, key []byte, suffixes []byte) (map[byte][]byte, error) {
	out := make(map[byte][]byte)
	b, err := t.bucket(prefix, false)
	if err != nil {
		return out, nil
	}
	for _, suf := range suffixes {
		v := b.Get(fullKey(key, &suf))
		if v == nil {
			continue
		}
		pt, err := t.s.open(v)
		if err != nil {
			return nil, err
		}
		out[suf] = pt
	}
	return out, nil
}

func (t *boltTx) HasPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return err
	}
	want := append(fullKey(key, suffix), value...)
	if v := b.Get(want); v != nil {
		return nil
	}
	return ErrNotFound
}

func (t *boltTx) GetAllKeysAndValues(prefix byte, keyPrefix []byte, suffix *byte) ([]KV, error) {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return nil, nil
	}
	var out []KV
	c := b.Cursor()
	for k, v := c.Seek(keyPrefix); k != nil && bytes.HasPrefix(k, keyPrefix); k, v = c.Next() {
		if suffix != nil {
			rest := k[len(keyPrefix):]
			if len(rest) < 1 || rest[0] != *suffix {
				continue
			}
		}
		pt, err := t.s.open(v)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: append([]byte{}, k...), Value: pt})
	}
	return out, nil
}

func (t *boltTx) Put(prefix byte, key []byte, suffix *byte, value []byte) error {
	b, err := t.bucket(prefix, true)
	if err != nil {
		return ErrBackendError
	}
	k := fullKey(key, suffix)
	if b.Get(k) != nil {
		return ErrAlreadyExists
	}
	sealed, err := t.s.seal(value)
	if err != nil {
		return ErrBackendError
	}
	if err := b.Put(k, sealed); err != nil {
		return ErrBackendError
	}
	return nil
}

func (t *boltTx) Replace(prefix byte, key []byte, suffix *byte, value []byte) error {
	b, err := t.bucket(prefix, true)
	if err != nil {
		return ErrBackendError
	}
	k := fullKey(key, suffix)
	if b.Get(k) == nil {
		return ErrNotFound
	}
	sealed, err := t.s.seal(value)
	if err != nil {
		return ErrBackendError
	}
	if err := b.Put(k, sealed); err != nil {
		return ErrBackendError
	}
	return nil
}

func (t *boltTx) Del(prefix byte, key []byte, suffix *byte) error {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return ErrNotFound
	}
	k := fullKey(key, suffix)
	if b.Get(k) == nil {
		return ErrNotFound
	}
	if err := b.Delete(k); err != nil {
		return ErrBackendError
	}
	return nil
}

func (t *boltTx) DelAll(prefix byte, key []byte, suffixes []byte) error {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return nil
	}
	for _, suf := range suffixes {
		k := fullKey(key, &suf)
		if b.Get(k) != nil {
			if err := b.Delete(k); err != nil {
				return ErrBackendError
			}
		}
	}
	return nil
}

func (t *boltTx) DelPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return ErrNotFound
	}
	k := append(fullKey(key, suffix), value...)
	if b.Get(k) == nil {
		return ErrNotFound
	}
	return b.Delete(k)
}

func (t *boltTx) DelAllValues(prefix byte, key []byte, suffix *byte) error {
	b, err := t.bucket(prefix, false)
	if err != nil {
		return nil
	}
	prefixBytes := fullKey(key, suffix)
	c := b.Cursor()
	var toDelete [][]byte
	for k, _ := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte{}, k...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return ErrBackendError
		}
	}
	return nil
}

// Storage-level (auto-committed) methods, each opening its own
// transaction.

func (s *BoltStorage) Get(prefix byte, key []byte, suffix *byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v, err := (&boltTx{tx: tx, s: s}).Get(prefix, key, suffix)
		out = v
		return asPlainErr(err)
	})
	return out, unwrapErr(err)
}

func (s *BoltStorage) GetAllPropertiesOfKey(prefix byte, key []byte, suffixes []byte) (map[byte][]byte, error) {
	var out map[byte][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v, err := (&boltTx{tx: tx, s: s}).GetAllPropertiesOfKey(prefix, key, suffixes)
		out = v
		return asPlainErr(err)
	})
	return out, unwrapErr(err)
}

func (s *BoltStorage) HasPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return asPlainErr((&boltTx{tx: tx, s: s}).HasPropertyValue(prefix, key, suffix, value))
	})
	return unwrapErr(err)
}

func (s *BoltStorage) GetAllKeysAndValues(prefix byte, keyPrefix []byte, suffix *byte) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		v, err := (&boltTx{tx: tx, s: s}).GetAllKeysAndValues(prefix, keyPrefix, suffix)
		out = v
		return asPlainErr(err)
	})
	return out, unwrapErr(err)
}

func (s *BoltStorage) Put(prefix byte, key []byte, suffix *byte, value []byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.Put(prefix, key, suffix, value) })
}

func (s *BoltStorage) Replace(prefix byte, key []byte, suffix *byte, value []byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.Replace(prefix, key, suffix, value) })
}

func (s *BoltStorage) Del(prefix byte, key []byte, suffix *byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.Del(prefix, key, suffix) })
}

func (s *BoltStorage) DelAll(prefix byte, key []byte, suffixes []byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.DelAll(prefix, key, suffixes) })
}

func (s *BoltStorage) DelPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.DelPropertyValue(prefix, key, suffix, value) })
}

func (s *BoltStorage) DelAllValues(prefix byte, key []byte, suffix *byte) error {
	return s.WriteTransaction(func(tx WriteTx) error { return tx.DelAllValues(prefix, key, suffix) })
}

// WriteTransaction runs fn inside a single bbolt read-write
// transaction: any error returned by fn aborts the whole transaction
// so no partial write is ever observed by a later reader (spec §5
// "Within one write_transaction: atomic visibility").
func (s *BoltStorage) WriteTransaction(fn func(tx WriteTx) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return asPlainErr(fn(&boltTx{tx: tx, s: s}))
	})
	return unwrapErr(err)
}

// asPlainErr/unwrapErr round-trip a types.StorageError through the
// generic `error` bbolt expects for tx callbacks without losing its
// concrete type, so callers still get back a StorageError they can
// switch on.
type wrappedStorageErr struct{ e StorageErr }

func (w wrappedStorageErr) Error() string { return w.e.Error() }

func asPlainErr(e error) error {
	if e == nil {
		return nil
	}
	if se, ok := e.(StorageErr); ok {
		return wrappedStorageErr{se}
	}
	return e
}

func unwrapErr(e error) error {
	if e == nil {
		return nil
	}
	if we, ok := e.(wrappedStorageErr); ok {
		return we.e
	}
	return e
}
