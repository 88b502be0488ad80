package entities

import (
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

var (
	sufTopicRepo       byte = 0x01
	sufTopicAdvert     byte = 0x02
	sufTopicRootCommit byte = 0x03
	sufTopicUsers      byte = 0x04
	sufTopicHeads      byte = 0x05
)

func encodePublisherAdvert(a types.PublisherAdvert) ([]byte, error) {
	b := make([]byte, 0, 32+32+32+64)
	b = append(b, a.Topic[:]...)
	b = append(b, a.Broker[:]...)
	b = append(b, a.PublicKey[:]...)
	b = append(b, a.Signature[:]...)
	return b, nil
}

func decodePublisherAdvert(b []byte) (types.PublisherAdvert, error) {
	var a types.PublisherAdvert
	if len(b) != 160 {
		return a, kcv.ErrSerializationErr
	}
	copy(a.Topic[:], b[0:32])
	copy(a.Broker[:], b[32:64])
	copy(a.PublicKey[:], b[64:96])
	copy(a.Signature[:], b[96:160])
	return a, nil
}

var topicRepoCol = kcv.ExistentialColumn[types.RepoHash]{
	Suffix: sufTopicRepo,
	Encode: encodeId32[types.RepoHash],
	Decode: decodeId32[types.RepoHash],
}

var topicAdvertCol = kcv.SingleValueColumn[types.PublisherAdvert]{
	Suffix: sufTopicAdvert,
	Encode: encodePublisherAdvert,
	Decode: decodePublisherAdvert,
}

var topicRootCommitCol = kcv.SingleValueColumn[types.ObjectId]{
	Suffix: sufTopicRootCommit,
	Encode: encodeId32[types.ObjectId],
	Decode: decodeId32[types.ObjectId],
}

var topicUsersCol = kcv.MultiMapColumn[types.UserId, bool]{
	Suffix:    sufTopicUsers,
	EncodeKey: encodeId32[types.UserId],
	DecodeKey: decodeId32[types.UserId],
	EncodeVal: encodeBool,
	DecodeVal: decodeBool,
}

var topicHeadsCol = kcv.MultiValueColumn[types.ObjectId]{
	Suffix: sufTopicHeads,
	Encode: encodeId32[types.ObjectId],
	Decode: decodeId32[types.ObjectId],
}

// Topic is the persistent view over prefix 't', key = overlay||topic
// (spec §3 "Topic").
type Topic struct {
	kcv.Base
	Overlay types.OverlayId
	Id      types.TopicId
}

func topicKey(overlay types.OverlayId, id types.TopicId) []byte {
	k := make([]byte, 0, 64)
	k = append(k, overlay.Bytes()...)
	k = append(k, id.Bytes()...)
	return k
}

func OpenTopic(s kcv.Storage, overlay types.OverlayId, id types.TopicId) (*Topic, error) {
	t := &Topic{kcv.Base{S: s, P: prefixTopic, K: topicKey(overlay, id)}, overlay, id}
	if !topicRepoCol.Exists(t) {
		return nil, kcv.ErrNotFound
	}
	return t, nil
}

func CreateTopic(s kcv.Storage, overlay types.OverlayId, id types.TopicId, repo types.RepoHash) (*Topic, error) {
	t := &Topic{kcv.Base{S: s, P: prefixTopic, K: topicKey(overlay, id)}, overlay, id}
	if err := topicRepoCol.Create(t, repo); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topic) Repo() (types.RepoHash, error) { return topicRepoCol.Get(t) }

func (t *Topic) Advert() (types.PublisherAdvert, error) { return topicAdvertCol.Get(t) }

func (t *Topic) SetAdvert(a types.PublisherAdvert) error { return topicAdvertCol.Set(t, a) }

func (t *Topic) RootCommit() (types.ObjectId, error) { return topicRootCommitCol.Get(t) }

func (t *Topic) SetRootCommit(id types.ObjectId) error { return topicRootCommitCol.Set(t, id) }

func (t *Topic) AddUser(user types.UserId, isPublisher bool) error {
	return topicUsersCol.Set(t, user, isPublisher)
}

func (t *Topic) Users() (map[types.UserId]bool, error) { return topicUsersCol.GetAll(t) }

func (t *Topic) Heads() ([]types.ObjectId, error) { return topicHeadsCol.GetAll(t) }

// AddHead records a new head object id. Heads must be added before
// dispatching the corresponding event (spec §5 "the topic head is
// updated before dispatch").
func (t *Topic) AddHead(id types.ObjectId) error { return topicHeadsCol.Add(t, id) }

func (t *Topic) RemoveHead(id types.ObjectId) error { return topicHeadsCol.Remove(t, id) }

func (t *Topic) Del(s kcv.Storage) error {
	return s.WriteTransaction(func(tx kcv.WriteTx) error {
		if err := tx.DelAll(t.Prefix(), t.Key(), []byte{sufTopicRepo, sufTopicAdvert, sufTopicRootCommit}); err != nil {
			return err
		}
		if err := tx.DelAllValues(t.Prefix(), t.Key(), &sufTopicUsers); err != nil {
			return err
		}
		return tx.DelAllValues(t.Prefix(), t.Key(), &sufTopicHeads)
	})
}
