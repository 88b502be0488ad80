package kcv

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *BoltStorage {
	t.Helper()
	dir := t.TempDir()
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	s, err := Open(filepath.Join(dir, "kcv.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type testEntity struct {
	Base
}

func newTestEntity(s Storage, key []byte) *testEntity {
	return &testEntity{Base{S: s, P: 0x01, K: key}}
}

func u32Enc(v uint32) ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b, nil
}

func u32Dec(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, ErrSerializationErr
	}
	return binary.BigEndian.Uint32(b), nil
}

var nameCol = SingleValueColumn[uint32]{Suffix: 0x01, Encode: u32Enc, Decode: u32Dec}

var membersCol = MultiValueColumn[uint32]{Suffix: 0x02, Encode: u32Enc, Decode: u32Dec}

var existsCol = ExistentialColumn[uint32]{Suffix: 0x03, Encode: u32Enc, Decode: u32Dec}

func TestSingleValueColumnPutReplaceDel(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-a"))

	require.NoError(t, nameCol.Set(e, 42))
	v, err := nameCol.Get(e)
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)

	require.NoError(t, nameCol.Set(e, 99))
	v, err = nameCol.Get(e)
	require.NoError(t, err)
	require.Equal(t, uint32(99), v)

	require.NoError(t, nameCol.Del(e))
	_, err = nameCol.Get(e)
	require.Equal(t, ErrNotFound, err)
}

func TestMultiValueColumnAddRemoveGetAll(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-b"))

	require.NoError(t, membersCol.Add(e, 1))
	require.NoError(t, membersCol.Add(e, 2))
	require.NoError(t, membersCol.Add(e, 3))
	require.True(t, membersCol.Has(e, 2))

	all, err := membersCol.GetAll(e)
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, membersCol.Remove(e, 2))
	require.False(t, membersCol.Has(e, 2))

	all, err = membersCol.GetAll(e)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestExistentialColumnGatesExistence(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-c"))

	require.False(t, existsCol.Exists(e))
	require.NoError(t, existsCol.Create(e, 7))
	require.True(t, existsCol.Exists(e))
	require.Equal(t, ErrAlreadyExists, existsCol.Create(e, 8))
}

func TestMultiCounterColumnLifecycle(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-d"))
	counter := MultiCounterColumn[uint32]{Suffix: 0x04, Encode: u32Enc, Decode: u32Dec}

	require.NoError(t, s.WriteTransaction(func(tx WriteTx) error {
		return counter.Incr(tx, e.Prefix(), e.Key(), 5)
	}))
	require.NoError(t, s.WriteTransaction(func(tx WriteTx) error {
		return counter.Incr(tx, e.Prefix(), e.Key(), 5)
	}))
	n, err := counter.Get(e, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	require.NoError(t, s.WriteTransaction(func(tx WriteTx) error {
		return counter.Decr(tx, e.Prefix(), e.Key(), 5)
	}))
	n, err = counter.Get(e, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	require.NoError(t, s.WriteTransaction(func(tx WriteTx) error {
		return counter.Decr(tx, e.Prefix(), e.Key(), 5)
	}))
	n, err = counter.Get(e, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n, "counter reaching zero removes the key rather than storing 0")

	require.Equal(t, ErrDataCorruption, s.WriteTransaction(func(tx WriteTx) error {
		return counter.Decr(tx, e.Prefix(), e.Key(), 5)
	}))
}

func TestMultiMapColumnTakeFirstIsFIFO(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-e"))
	inbox := MultiMapColumn[uint32, uint32]{
		Suffix:    0x05,
		EncodeKey: u32Enc, DecodeKey: u32Dec,
		EncodeVal: u32Enc, DecodeVal: u32Dec,
	}

	require.NoError(t, inbox.Set(e, 3, 300))
	require.NoError(t, inbox.Set(e, 1, 100))
	require.NoError(t, inbox.Set(e, 2, 200))

	k, v, err := inbox.TakeFirst(e)
	require.NoError(t, err)
	require.Equal(t, uint32(1), k)
	require.Equal(t, uint32(100), v)

	k, v, err = inbox.TakeFirst(e)
	require.NoError(t, err)
	require.Equal(t, uint32(2), k)
	require.Equal(t, uint32(200), v)

	k, v, err = inbox.TakeFirst(e)
	require.NoError(t, err)
	require.Equal(t, uint32(3), k)
	require.Equal(t, uint32(300), v)

	_, _, err = inbox.TakeFirst(e)
	require.Equal(t, ErrNotFound, err)
}

func TestWriteTransactionIsAtomic(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-f"))
	require.NoError(t, nameCol.Set(e, 1))

	err := s.WriteTransaction(func(tx WriteTx) error {
		if err := tx.Replace(e.Prefix(), e.Key(), &nameCol.Suffix, mustEnc(2)); err != nil {
			return err
		}
		return ErrInvalidValue // force rollback after the first write
	})
	require.Equal(t, ErrInvalidValue, err)

	v, err := nameCol.Get(e)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v, "a failed transaction must not leave a partial write visible")
}

func mustEnc(v uint32) []byte {
	b, _ := u32Enc(v)
	return b
}

func TestPutFailsIfAlreadyExists(t *testing.T) {
	s := openTestStorage(t)
	e := newTestEntity(s, []byte("entity-g"))
	require.NoError(t, nameCol.Set(e, 1))
	suffix := nameCol.Suffix
	err := s.Put(e.Prefix(), e.Key(), &suffix, mustEnc(2))
	require.Equal(t, ErrAlreadyExists, err)
}
