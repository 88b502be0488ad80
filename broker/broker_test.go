package broker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nextgraph.dev/broker/entities"
	blockstore "nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	dir := t.TempDir()
	var masterKey [32]byte
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	kcvStore, err := kcv.Open(filepath.Join(dir, "kcv.db"), masterKey)
	require.NoError(t, err)
	blkStore, err := blockstore.OpenStore(filepath.Join(dir, "blocks.db"))
	require.NoError(t, err)

	var peerID types.PeerId
	peerID[0] = 0x42

	b := New(peerID, kcvStore, blkStore)
	t.Cleanup(b.Halt)
	return b
}

func TestInboxOrderWithTies(t *testing.T) {
	b := newTestBroker(t)
	var overlay types.OverlayId
	var inboxPub types.PubKey
	overlay[0] = 1
	inboxPub[0] = 2

	// Three messages at the same (sec,nano) must come back ordered by
	// body hash (spec §8 scenario 2).
	inbox := entities.OpenOrCreateInbox(b.kcvStore, overlay, inboxPub)
	require.NoError(t, inbox.Post(entities.MsgKey{Sec: 10, Nano: 0, BodyHash: 0x00CC}, types.InboxMsg{Body: []byte("c")}))
	require.NoError(t, inbox.Post(entities.MsgKey{Sec: 10, Nano: 0, BodyHash: 0x00AA}, types.InboxMsg{Body: []byte("a")}))
	require.NoError(t, inbox.Post(entities.MsgKey{Sec: 10, Nano: 0, BodyHash: 0x00BB}, types.InboxMsg{Body: []byte("b")}))

	_, m1, err := inbox.TakeFirst()
	require.NoError(t, err)
	_, m2, err := inbox.TakeFirst()
	require.NoError(t, err)
	_, m3, err := inbox.TakeFirst()
	require.NoError(t, err)

	require.Equal(t, "a", string(m1.Body))
	require.Equal(t, "b", string(m2.Body))
	require.Equal(t, "c", string(m3.Body))
}

func TestOutOfOrderSequenceRejected(t *testing.T) {
	b := newTestBroker(t)
	var peer types.PeerId
	peer[0] = 7

	require.NoError(t, b.NextSeqForPeer(peer, 5))
	err := b.NextSeqForPeer(peer, 4)
	require.Equal(t, types.ErrInvalidRequest, err)
}

func TestRendezvousRace(t *testing.T) {
	b := newTestBroker(t)
	var id types.RendezvousId
	id[0] = 9
	wallet := []byte("exported-wallet-bytes")

	type result struct {
		wallet []byte
		err    error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			w, err := b.WaitForWalletAtRendezvous(id)
			results <- result{w, err}
		}()
	}
	// Give both waiters a chance to register before delivering.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.PutWalletAtRendezvous(id, wallet))

	r1 := <-results
	r2 := <-results

	successes := 0
	failures := 0
	for _, r := range []result{r1, r2} {
		if r.err == nil {
			successes++
			require.Equal(t, wallet, r.wallet)
		} else {
			failures++
			require.Equal(t, types.ErrBrokerError, r.err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, failures)

	// The rendezvous is removed after delivery: a second put with no
	// waiter fails.
	err := b.PutWalletAtRendezvous(id, []byte("w2"))
	require.Equal(t, types.ErrBrokerError, err)
}

func TestOverlayUpgrade(t *testing.T) {
	b := newTestBroker(t)
	var outerId, innerId types.OverlayId
	outerId[0] = 1
	innerId[0] = 2

	_, err := entities.CreateOverlay(b.kcvStore, outerId, types.OverlayType{Kind: types.OverlayOuterOnly})
	require.NoError(t, err)

	o, err := entities.CreateOverlay(b.kcvStore, outerId, types.OverlayType{Kind: types.OverlayOuter, Inner: &innerId})
	require.NoError(t, err)

	got, err := o.Type()
	require.NoError(t, err)
	require.Equal(t, types.OverlayOuter, got.Kind)
	require.Equal(t, innerId, *got.Inner)

	// A second create attempt with unrelated kind must fail.
	_, err = entities.CreateOverlay(b.kcvStore, outerId, types.OverlayType{Kind: types.OverlayInner})
	require.Equal(t, kcv.ErrAlreadyExists, err)
}

func TestInvitationExpiry(t *testing.T) {
	b := newTestBroker(t)
	var code types.InvitationCode
	code[0] = 3
	require.NoError(t, b.AddInvitation(code, types.InvitationUnique, 1000, nil))

	_, err := b.GetInvitationType(code, 500)
	require.NoError(t, err)

	_, err = b.GetInvitationType(code, 2000)
	require.Equal(t, types.ErrExpired, err)
}

func TestPinAndSync(t *testing.T) {
	b := newTestBroker(t)
	var overlay types.OverlayId
	var repoHash types.RepoHash
	var user types.UserId
	var peer types.PeerId
	overlay[0], repoHash[0], user[0], peer[0] = 1, 2, 3, 4

	leaf := &blockstore.Block{EncryptedContent: []byte("B1")}
	leafId, err := b.PutBlock(overlay, leaf)
	require.NoError(t, err)

	topicID := types.TopicId{0xAA}
	opened, err := b.PinRepoRead(overlay, repoHash, user, []types.TopicId{topicID})
	require.NoError(t, err)
	require.Equal(t, repoHash, opened.Repo)

	res, err := b.TopicSub(overlay, repoHash, topicID, user, false, peer, nil)
	require.NoError(t, err)
	require.Empty(t, res.Heads)

	var rootObj types.ObjectId
	copy(rootObj[:], leafId[:])
	event := types.Event{Topic: topicID, Commit: rootObj, Peer: peer, Seq: 1}
	_, err = b.DispatchEvent(overlay, event, user, types.PeerId{})
	require.NoError(t, err)

	synced, err := b.TopicSyncReq(overlay, topicID, nil, []types.ObjectId{rootObj}, nil)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	require.Equal(t, leafId, synced[0].Id)
}
