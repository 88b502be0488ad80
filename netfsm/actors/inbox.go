package actors

import (
	"nextgraph.dev/broker/broker"
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterInboxActors binds inbox_register/inbox_post/inbox_pop
// (spec §4.D, §4.G).
func RegisterInboxActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindInboxRegister, inboxRegister)
	d.Register(netfsm.KindInboxPost, inboxPost)
	d.Register(netfsm.KindInboxPop, inboxPop)
}

func inboxRegister(fsm *netfsm.FSM, id int64, content []byte) {
	inboxPub, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	overlay, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	challenge, rest, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	sig, _, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	reg := broker.InboxRegistration{
		InboxPub:  types.PubKey(inboxPub),
		Overlay:   types.OverlayId(overlay),
		Challenge: challenge,
		Signature: sig,
	}
	if err := fsm.Broker().InboxRegister(fsm.PeerID(), reg); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}

func inboxPost(fsm *netfsm.FSM, id int64, content []byte) {
	toInbox, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	toOverlay, rest, err := takeId(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	body, rest, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	sec, rest, err := takeU64(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	nano, _, err := takeU32(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	msg := types.InboxMsg{Body: types.InboxMsgBody(body), ToOverlay: types.OverlayId(toOverlay)}
	if err := fsm.Broker().InboxPost(types.PubKey(toInbox), types.OverlayId(toOverlay), msg, sec, nano); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}

func inboxPop(fsm *netfsm.FSM, id int64, content []byte) {
	msg, err := fsm.Broker().InboxPopForUser(fsm.PeerID())
	if err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	var buf []byte
	buf = putBytes(buf, msg.Body)
	buf = putId(buf, msg.ToOverlay)
	fsm.Send(id, types.Ok, buf)
}
