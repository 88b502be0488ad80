package kcv

// Model is the contract every persistent entity in package entities
// implements: a storage handle, a prefix byte, and the entity's own
// key bytes (spec §9 "one trait/interface IModel per entity with
// static descriptors for each column"). Columns are not discovered by
// reflection: each entity hand-writes its column descriptors as
// package-level values, then calls their Get/Set/Add/... methods
// passing itself as the Model.
type Model interface {
	Storage() Storage
	Prefix() byte
	Key() []byte
}

// Base is embedded by every entity to supply the Model plumbing.
type Base struct {
	S   Storage
	P   byte
	K   []byte
}

func (b *Base) Storage() Storage { return b.S }
func (b *Base) Prefix() byte     { return b.P }
func (b *Base) Key() []byte      { return b.K }

// ExistentialColumn gates whether a record exists at all: the record
// exists iff this column's suffix is present (spec §4.C "Existential
// columns gate the existence check").
type ExistentialColumn[T any] struct {
	Suffix byte
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

func (c ExistentialColumn[T]) Exists(m Model) bool {
	_, err := m.Storage().Get(m.Prefix(), m.Key(), &c.Suffix)
	return err == nil
}

func (c ExistentialColumn[T]) Get(m Model) (T, error) {
	var zero T
	v, err := m.Storage().Get(m.Prefix(), m.Key(), &c.Suffix)
	if err != nil {
		return zero, err
	}
	return c.Decode(v)
}

// Create stores the existential value, failing StorageAlreadyExists
// if the record is already present.
func (c ExistentialColumn[T]) Create(m Model, val T) error {
	b, err := c.Encode(val)
	if err != nil {
		return ErrSerializationErr
	}
	return m.Storage().Put(m.Prefix(), m.Key(), &c.Suffix, b)
}

// SingleValueColumn is a scalar property of an entity (spec §3's
// "Scalar:" columns).
type SingleValueColumn[T any] struct {
	Suffix byte
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

func (c SingleValueColumn[T]) Get(m Model) (T, error) {
	var zero T
	v, err := m.Storage().Get(m.Prefix(), m.Key(), &c.Suffix)
	if err != nil {
		return zero, err
	}
	return c.Decode(v)
}

// Set upserts the scalar value: Put if absent, Replace if present.
func (c SingleValueColumn[T]) Set(m Model, val T) error {
	b, err := c.Encode(val)
	if err != nil {
		return ErrSerializationErr
	}
	s := m.Storage()
	if err := s.Put(m.Prefix(), m.Key(), &c.Suffix, b); err == nil {
		return nil
	}
	return s.Replace(m.Prefix(), m.Key(), &c.Suffix, b)
}

// Del removes the scalar value.
func (c SingleValueColumn[T]) Del(m Model) error {
	return m.Storage().Del(m.Prefix(), m.Key(), &c.Suffix)
}

func tail(base []byte, suffix byte, member []byte) []byte {
	out := make([]byte, 0, len(base)+1+len(member))
	out = append(out, base...)
	out = append(out, suffix)
	out = append(out, member...)
	return out
}

// MultiValueColumn is a set of T keyed entirely by the column tail,
// with no payload beyond membership (spec §3 "Multi:" columns such as
// Topic.heads).
type MultiValueColumn[T comparable] struct {
	Suffix byte
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

func (c MultiValueColumn[T]) Add(m Model, v T) error {
	enc, err := c.Encode(v)
	if err != nil {
		return ErrSerializationErr
	}
	return m.Storage().Put(m.Prefix(), tail(m.Key(), c.Suffix, enc), nil, []byte{})
}

func (c MultiValueColumn[T]) Remove(m Model, v T) error {
	enc, err := c.Encode(v)
	if err != nil {
		return ErrSerializationErr
	}
	return m.Storage().Del(m.Prefix(), tail(m.Key(), c.Suffix, enc), nil)
}

func (c MultiValueColumn[T]) Has(m Model, v T) bool {
	enc, err := c.Encode(v)
	if err != nil {
		return false
	}
	return m.Storage().HasPropertyValue(m.Prefix(), m.Key(), &c.Suffix, enc) == nil
}

func (c MultiValueColumn[T]) GetAll(m Model) ([]T, error) {
	base := append(append([]byte{}, m.Key()...), c.Suffix)
	kvs, err := m.Storage().GetAllKeysAndValues(m.Prefix(), base, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(kvs))
	for _, kv := range kvs {
		member := kv.Key[len(base):]
		v, err := c.Decode(member)
		if err != nil {
			return nil, ErrSerializationErr
		}
		out = append(out, v)
	}
	return out, nil
}

// MultiMapColumn associates each member key K with a payload value V
// (spec §3 "Topic.users[UserId]->bool(publisher?)").
type MultiMapColumn[K comparable, V any] struct {
	Suffix     byte
	EncodeKey  func(K) ([]byte, error)
	DecodeKey  func([]byte) (K, error)
	EncodeVal  func(V) ([]byte, error)
	DecodeVal  func([]byte) (V, error)
}

func (c MultiMapColumn[K, V]) Set(m Model, k K, v V) error {
	ek, err := c.EncodeKey(k)
	if err != nil {
		return ErrSerializationErr
	}
	ev, err := c.EncodeVal(v)
	if err != nil {
		return ErrSerializationErr
	}
	key := tail(m.Key(), c.Suffix, ek)
	s := m.Storage()
	if err := s.Put(m.Prefix(), key, nil, ev); err == nil {
		return nil
	}
	return s.Replace(m.Prefix(), key, nil, ev)
}

func (c MultiMapColumn[K, V]) Remove(m Model, k K) error {
	ek, err := c.EncodeKey(k)
	if err != nil {
		return ErrSerializationErr
	}
	return m.Storage().Del(m.Prefix(), tail(m.Key(), c.Suffix, ek), nil)
}

func (c MultiMapColumn[K, V]) Get(m Model, k K) (V, error) {
	var zero V
	ek, err := c.EncodeKey(k)
	if err != nil {
		return zero, ErrSerializationErr
	}
	v, err := m.Storage().Get(m.Prefix(), tail(m.Key(), c.Suffix, ek), nil)
	if err != nil {
		return zero, err
	}
	return c.DecodeVal(v)
}

func (c MultiMapColumn[K, V]) GetAll(m Model) (map[K]V, error) {
	base := append(append([]byte{}, m.Key()...), c.Suffix)
	kvs, err := m.Storage().GetAllKeysAndValues(m.Prefix(), base, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(kvs))
	for _, kv := range kvs {
		k, err := c.DecodeKey(kv.Key[len(base):])
		if err != nil {
			return nil, ErrSerializationErr
		}
		v, err := c.DecodeVal(kv.Value)
		if err != nil {
			return nil, ErrSerializationErr
		}
		out[k] = v
	}
	return out, nil
}

// TakeFirst deletes and returns the smallest-keyed entry (by the raw
// encoded member bytes, hence the FIFO ordering entities rely on for
// inbox delivery, spec §4.G / §8 "Inbox FIFO"). The scan and the
// delete run inside one WriteTransaction so two concurrent callers
// can never read the same head entry before either one deletes it
// (spec §4.G "pop is atomic").
func (c MultiMapColumn[K, V]) TakeFirst(m Model) (K, V, error) {
	var zeroK K
	var zeroV V
	var k K
	var v V
	base := append(append([]byte{}, m.Key()...), c.Suffix)

	err := m.Storage().WriteTransaction(func(tx WriteTx) error {
		kvs, err := tx.GetAllKeysAndValues(m.Prefix(), base, nil)
		if err != nil {
			return err
		}
		if len(kvs) == 0 {
			return ErrNotFound
		}
		first := kvs[0]
		k, err = c.DecodeKey(first.Key[len(base):])
		if err != nil {
			return ErrSerializationErr
		}
		v, err = c.DecodeVal(first.Value)
		if err != nil {
			return ErrSerializationErr
		}
		return tx.Del(m.Prefix(), first.Key, nil)
	})
	if err != nil {
		return zeroK, zeroV, err
	}
	return k, v, nil
}

// MultiCounterColumn is a refcount per member, automatically removed
// once it reaches zero (spec §3 "Refcount columns blocks[BlockId]->u64").
type MultiCounterColumn[T comparable] struct {
	Suffix byte
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return b
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (c MultiCounterColumn[T]) Get(m Model, v T) (uint64, error) {
	enc, err := c.Encode(v)
	if err != nil {
		return 0, ErrSerializationErr
	}
	b, err := m.Storage().Get(m.Prefix(), tail(m.Key(), c.Suffix, enc), nil)
	if err != nil {
		if err == ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return decodeU64(b), nil
}

// Incr increments the refcount for v inside a caller-managed write
// transaction, creating the entry if absent.
func (c MultiCounterColumn[T]) Incr(tx WriteTx, prefix byte, key []byte, v T) error {
	enc, err := c.Encode(v)
	if err != nil {
		return ErrSerializationErr
	}
	k := tail(key, c.Suffix, enc)
	cur, err := tx.Get(prefix, k, nil)
	if err != nil && err != ErrNotFound {
		return err
	}
	n := decodeU64(cur) + 1
	if err == ErrNotFound {
		return tx.Put(prefix, k, nil, encodeU64(n))
	}
	return tx.Replace(prefix, k, nil, encodeU64(n))
}

// Decr decrements the refcount for v, deleting the entry once it
// reaches zero. Decrementing an absent or already-zero entry is a
// corruption signal (spec §9 "Decrementing below zero is a
// corruption signal").
func (c MultiCounterColumn[T]) Decr(tx WriteTx, prefix byte, key []byte, v T) error {
	enc, err := c.Encode(v)
	if err != nil {
		return ErrSerializationErr
	}
	k := tail(key, c.Suffix, enc)
	cur, err := tx.Get(prefix, k, nil)
	if err != nil {
		return ErrDataCorruption
	}
	n := decodeU64(cur)
	if n == 0 {
		return ErrDataCorruption
	}
	if n == 1 {
		return tx.Del(prefix, k, nil)
	}
	return tx.Replace(prefix, k, nil, encodeU64(n-1))
}

func (c MultiCounterColumn[T]) GetAll(m Model) (map[T]uint64, error) {
	base := append(append([]byte{}, m.Key()...), c.Suffix)
	kvs, err := m.Storage().GetAllKeysAndValues(m.Prefix(), base, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[T]uint64, len(kvs))
	for _, kv := range kvs {
		v, err := c.Decode(kv.Key[len(base):])
		if err != nil {
			return nil, ErrSerializationErr
		}
		out[v] = decodeU64(kv.Value)
	}
	return out, nil
}
