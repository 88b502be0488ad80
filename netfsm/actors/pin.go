package actors

import (
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterPinActors binds pin_repo_write/pin_repo_read (spec §4.D).
func RegisterPinActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindPinRepoWrite, pinRepoWrite)
	d.Register(netfsm.KindPinRepoRead, pinRepoRead)
}

func decodeOverlayAccess(b []byte) (types.OverlayAccess, []byte, error) {
	var acc types.OverlayAccess
	kind, rest, err := takeU32(b)
	if err != nil {
		return acc, nil, err
	}
	acc.Kind = types.OverlayAccessKind(kind)
	write, rest, err := takeId(rest)
	if err != nil {
		return acc, nil, err
	}
	read, rest, err := takeId(rest)
	if err != nil {
		return acc, nil, err
	}
	acc.Write = types.OverlayId(write)
	acc.Read = types.OverlayId(read)
	return acc, rest, nil
}

func pinRepoWrite(fsm *netfsm.FSM, id int64, content []byte) {
	acc, rest, err := decodeOverlayAccess(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	repoHash, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	roIds, rest, err := takeIdList(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	rwIds, rest, err := takeIdList(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	exposeOuter, rest, err := takeBool(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	_ = rest

	roTopics := make([]types.TopicId, len(roIds))
	for i, t := range roIds {
		roTopics[i] = types.TopicId(t)
	}
	rwTopics := make([]types.TopicId, len(rwIds))
	for i, t := range rwIds {
		rwTopics[i] = types.TopicId(t)
	}

	opened, err := fsm.Broker().PinRepoWrite(acc, types.RepoHash(repoHash), fsm.PeerID(), roTopics, rwTopics, nil, exposeOuter, nil)
	if err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, encodeTopicIds(opened.Topics))
}

func pinRepoRead(fsm *netfsm.FSM, id int64, content []byte) {
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
	roIds, _, err := takeIdList(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	roTopics := make([]types.TopicId, len(roIds))
	for i, t := range roIds {
		roTopics[i] = types.TopicId(t)
	}
	opened, err := fsm.Broker().PinRepoRead(types.OverlayId(overlay), types.RepoHash(repoHash), fsm.PeerID(), roTopics)
	if err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, encodeTopicIds(opened.Topics))
}

func encodeTopicIds(topics []types.TopicId) []byte {
	ids := make([][32]byte, len(topics))
	for i, t := range topics {
		ids[i] = t
	}
	return putIdList(nil, ids)
}
