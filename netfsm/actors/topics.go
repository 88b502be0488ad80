package actors

import (
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterTopicActors binds topic_sub/unsubscribe/publish_event and
// topic_sync_req (spec §4.D, §4.H).
func RegisterTopicActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindTopicSub, topicSub)
	d.Register(netfsm.KindTopicUnsub, topicUnsub)
	d.Register(netfsm.KindPublishEvent, publishEvent)
	d.Register(netfsm.KindTopicSyncReq, topicSyncReq)
}

func topicSub(fsm *netfsm.FSM, id int64, content []byte) {
	overlay, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	repoHash, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	topicID, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	isPublisher, _, err := takeBool(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}

	peer := fsm.PeerID()
	send := func(ev types.Event) {
		fsm.Send(0, types.Ok, encodeEvent(ev))
	}
	res, err := fsm.Broker().TopicSub(types.OverlayId(overlay), types.RepoHash(repoHash), types.TopicId(topicID), peer, isPublisher, peer, send)
	if err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	objIds := make([][32]byte, len(res.Heads))
	for i, h := range res.Heads {
		objIds[i] = h
	}
	fsm.Send(id, types.Ok, putIdList(nil, objIds))
}

func topicUnsub(fsm *netfsm.FSM, id int64, content []byte) {
	overlay, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	topicID, _, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	fsm.Broker().Unsubscribe(types.OverlayId(overlay), types.TopicId(topicID), fsm.PeerID())
	fsm.Send(id, types.Ok, nil)
}

func encodeEvent(e types.Event) []byte {
	var buf []byte
	buf = putId(buf, e.Topic)
	buf = putId(buf, e.Commit)
	buf = putId(buf, e.Peer)
	buf = putU64(buf, e.Seq)
	buf = putBytes(buf, e.Content)
	return buf
}

func decodeEvent(b []byte) (types.Event, error) {
	var e types.Event
	topic, rest, err := takeId(b)
	if err != nil {
		return e, err
	}
	commit, rest, err := takeId(rest)
	if err != nil {
		return e, err
	}
	peer, rest, err := takeId(rest)
	if err != nil {
		return e, err
	}
	seq, rest, err := takeU64(rest)
	if err != nil {
		return e, err
	}
	content, _, err := takeBytes(rest)
	if err != nil {
		return e, err
	}
	e.Topic = types.TopicId(topic)
	e.Commit = types.ObjectId(commit)
	e.Peer = types.PeerId(peer)
	e.Seq = seq
	e.Content = content
	return e, nil
}

func publishEvent(fsm *netfsm.FSM, id int64, content []byte) {
	overlay, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	event, err := decodeEvent(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	if err := fsm.Broker().NextSeqForPeer(fsm.PeerID(), event.Seq); err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		fsm.Close()
		return
	}
	if _, err := fsm.Broker().DispatchEvent(types.OverlayId(overlay), event, fsm.PeerID(), fsm.PeerID()); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}

func topicSyncReq(fsm *netfsm.FSM, id int64, content []byte) {
	overlay, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	topicID, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	knownRaw, rest, err := takeIdList(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	targetRaw, _, err := takeIdList(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	known := make([]types.ObjectId, len(knownRaw))
	for i, k := range knownRaw {
		known[i] = k
	}
	target := make([]types.ObjectId, len(targetRaw))
	for i, t := range targetRaw {
		target[i] = t
	}

	blocks, err := fsm.Broker().TopicSyncReq(types.OverlayId(overlay), types.TopicId(topicID), known, target, nil)
	if err != nil {
		fsm.SendError(id, types.ErrBrokerError)
		return
	}
	if len(blocks) == 0 {
		fsm.SendError(id, types.ErrEmptyStream)
		return
	}
	for _, r := range blocks {
		enc, err := r.Block.Encode()
		if err != nil {
			continue
		}
		fsm.Send(id, types.ErrPartialContent, putBytes(nil, enc))
	}
	fsm.Send(id, types.ErrEndOfStream, nil)
}
