package block

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
	"nextgraph.dev/broker/types"
)

// BoltStore is the bbolt-backed Store: one bucket keyed by
// overlay(32) || blockID(32) (spec §4.B). Block content is already
// application-encrypted by the client (EncryptedContent); the store
// itself only pads and length-prefixes it, recomputing and
// rechecking the block id on every read rather than adding a second
// encryption layer over already-opaque bytes.
type BoltStore struct {
	db *bolt.DB
}

var blocksBucket = []byte("blocks")

func OpenStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func blockKey(overlay types.OverlayId, id types.BlockId) []byte {
	k := make([]byte, 0, 64)
	k = append(k, overlay.Bytes()...)
	k = append(k, id.Bytes()...)
	return k
}

// onDiskRecord length-prefixes the canonical encoding before padding,
// so Get can strip the pad and still recover the exact bytes whose
// hash it must recheck.
func onDiskRecord(canonical []byte) []byte {
	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(canonical)))
	rec := make([]byte, 0, 4+len(canonical))
	rec = append(rec, n4[:]...)
	rec = append(rec, canonical...)
	return padToPage(rec)
}

func fromOnDiskRecord(rec []byte) ([]byte, error) {
	if len(rec) < 4 {
		return nil, types.StorageDataCorruption
	}
	n := binary.BigEndian.Uint32(rec[:4])
	if 4+int(n) > len(rec) {
		return nil, types.StorageDataCorruption
	}
	return rec[4 : 4+n], nil
}

func (s *BoltStore) Get(overlay types.OverlayId, id types.BlockId) (*Block, error) {
	key := blockKey(overlay, id)
	var rec []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		v := b.Get(key)
		if v == nil {
			return types.StorageNotFound
		}
		rec = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	canonical, err := fromOnDiskRecord(rec)
	if err != nil {
		return nil, err
	}
	blk, err := Decode(canonical)
	if err != nil {
		return nil, err
	}
	gotId, err := blk.Id()
	if err != nil {
		return nil, types.StorageDataCorruption
	}
	if gotId != id {
		return nil, types.StorageDataCorruption
	}
	return blk, nil
}

func (s *BoltStore) Put(overlay types.OverlayId, blk *Block) (types.BlockId, error) {
	canonical, err := blk.Encode()
	if err != nil {
		return types.BlockId{}, types.StorageInvalidValue
	}
	id, err := blk.Id()
	if err != nil {
		return types.BlockId{}, types.StorageInvalidValue
	}
	key := blockKey(overlay, id)
	rec := onDiskRecord(canonical)
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		if b.Get(key) != nil {
			return nil // idempotent: identical content, identical id
		}
		return b.Put(key, rec)
	})
	if err != nil {
		return types.BlockId{}, types.StorageBackendError
	}
	return id, nil
}

func (s *BoltStore) Del(overlay types.OverlayId, id types.BlockId) (uint64, error) {
	key := blockKey(overlay, id)
	var freed uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		v := b.Get(key)
		if v == nil {
			return types.StorageNotFound
		}
		freed = uint64(len(v))
		return b.Delete(key)
	})
	if err != nil {
		return 0, err
	}
	return freed, nil
}

func (s *BoltStore) Len() (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		n = uint64(b.Stats().KeyN)
		return nil
	})
	return n, err
}

// commitClosure walks the children DAG from a root commit object,
// used by broker.GetCommit (spec §4.D "get_commit ... DAG walk over
// children").
func (s *BoltStore) CommitClosure(overlay types.OverlayId, root types.BlockId) ([]*Block, error) {
	seen := make(map[types.BlockId]bool)
	var out []*Block
	var walk func(id types.BlockId) error
	walk = func(id types.BlockId) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		blk, err := s.Get(overlay, id)
		if err != nil {
			return err
		}
		out = append(out, blk)
		for _, child := range blk.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
