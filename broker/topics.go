package broker

import (
	"nextgraph.dev/broker/entities"
	"nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/types"
)

// TopicSub subscribes peer to topic on behalf of user, recording
// publisher status and returning the current heads so the caller can
// immediately sync (spec §4.D "topic_sub", §4.H "topic_sub inserts
// into this map and records the user on the topic's users column").
func (b *Broker) TopicSub(overlay types.OverlayId, repoHash types.RepoHash, topicID types.TopicId, user types.UserId, isPublisher bool, peer types.PeerId, send func(types.Event)) (*TopicSubRes, error) {
	topic, err := entities.OpenTopic(b.kcvStore, overlay, topicID)
	if err != nil {
		topic, err = entities.CreateTopic(b.kcvStore, overlay, topicID, repoHash)
		if err != nil {
			return nil, types.ErrBrokerError
		}
	}
	if err := topic.AddUser(user, isPublisher); err != nil {
		return nil, types.ErrBrokerError
	}

	key := topicKey{Overlay: overlay, Topic: topicID}
	b.topicsMu.Lock()
	subs, ok := b.fanout[key]
	if !ok {
		subs = make(map[types.PeerId]*subscription)
		b.fanout[key] = subs
	}
	subs[peer] = &subscription{Peer: peer, Send: send}
	b.topicsMu.Unlock()

	heads, err := topic.Heads()
	if err != nil {
		return nil, types.ErrBrokerError
	}
	return &TopicSubRes{Topic: topicID, Heads: heads}, nil
}

// Unsubscribe removes peer's subscription to a single topic.
func (b *Broker) Unsubscribe(overlay types.OverlayId, topicID types.TopicId, peer types.PeerId) {
	key := topicKey{Overlay: overlay, Topic: topicID}
	b.topicsMu.Lock()
	defer b.topicsMu.Unlock()
	if subs, ok := b.fanout[key]; ok {
		delete(subs, peer)
		if len(subs) == 0 {
			delete(b.fanout, key)
		}
	}
}

// RemoveAllSubscriptionsOfClient drops peer from every topic it is
// subscribed to, called on disconnect (spec §4.H
// "remove_all_subscriptions_of_client").
func (b *Broker) RemoveAllSubscriptionsOfClient(peer types.PeerId) {
	b.topicsMu.Lock()
	defer b.topicsMu.Unlock()
	for key, subs := range b.fanout {
		delete(subs, peer)
		if len(subs) == 0 {
			delete(b.fanout, key)
		}
	}
}

// NextSeqForPeer enforces per-publisher monotonic sequence numbers
// (spec §4.D "next_seq_for_peer", §8 "Publisher sequence").
func (b *Broker) NextSeqForPeer(peer types.PeerId, seq uint64) error {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	if last, ok := b.lastSeq[peer]; ok && seq <= last {
		return types.ErrInvalidRequest
	}
	b.lastSeq[peer] = seq
	return nil
}

// DispatchEvent persists the event's head and returns the set of
// subscriber peers to deliver it to, excluding origin (spec §4.D
// "dispatch_event", §5 "the topic head is updated before dispatch").
func (b *Broker) DispatchEvent(overlay types.OverlayId, event types.Event, user types.UserId, originPeer types.PeerId) ([]types.PeerId, error) {
	topic, err := entities.OpenTopic(b.kcvStore, overlay, event.Topic)
	if err != nil {
		return nil, types.ErrNotFound
	}
	if err := topic.AddHead(event.Commit); err != nil {
		return nil, types.ErrBrokerError
	}

	key := topicKey{Overlay: overlay, Topic: event.Topic}
	b.topicsMu.RLock()
	defer b.topicsMu.RUnlock()
	subs := b.fanout[key]
	out := make([]types.PeerId, 0, len(subs))
	for peer, sub := range subs {
		if peer == originPeer {
			continue
		}
		out = append(out, peer)
		if sub.Send != nil {
			sub.Send(event)
		}
	}
	return out, nil
}

// TopicSyncRes is one block delivered in response to topic_sync_req
// (spec §4.D "topic_sync_req ... [TopicSyncRes]").
type TopicSyncRes struct {
	Block *block.Block
	Id    types.BlockId
}

// TopicSyncReq computes the blocks needed to advance a subscriber
// from knownHeads to targetHeads by walking each target commit's
// closure and returning every block not already reachable from a
// known head (spec §4.D "topic_sync_req"). knownCommits is accepted
// for interface parity but ignored — correctness must not depend on
// it (spec §9 open question).
func (b *Broker) TopicSyncReq(overlay types.OverlayId, topicID types.TopicId, knownHeads, targetHeads []types.ObjectId, knownCommits []types.ObjectId) ([]TopicSyncRes, error) {
	bolt, ok := b.blockStore.(*block.BoltStore)
	if !ok {
		return nil, types.ErrBrokerError
	}
	known := make(map[types.BlockId]bool)
	for _, h := range knownHeads {
		var id types.BlockId
		copy(id[:], h[:])
		if closure, err := bolt.CommitClosure(overlay, id); err == nil {
			for _, blk := range closure {
				bid, _ := blk.Id()
				known[bid] = true
			}
		}
	}

	seen := make(map[types.BlockId]bool)
	var out []TopicSyncRes
	for _, target := range targetHeads {
		var id types.BlockId
		copy(id[:], target[:])
		closure, err := bolt.CommitClosure(overlay, id)
		if err != nil {
			continue
		}
		for _, blk := range closure {
			bid, _ := blk.Id()
			if known[bid] || seen[bid] {
				continue
			}
			seen[bid] = true
			out = append(out, TopicSyncRes{Block: blk, Id: bid})
		}
	}
	return out, nil
}
