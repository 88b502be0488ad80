package actors

import (
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterInvitationActors binds the invitation lifecycle request
// kinds (spec §4.D "add_invitation/remove_invitation/list_invitations").
func RegisterInvitationActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindAddInvitation, addInvitation)
	d.Register(netfsm.KindRemoveInvitation, removeInvitation)
	d.Register(netfsm.KindListInvitations, listInvitations)
}

func addInvitation(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	code, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	kind, rest, err := takeU32(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	expiry, rest, err := takeU32(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	hasMemo, rest, err := takeBool(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	var memo *string
	if hasMemo {
		raw, _, err := takeBytes(rest)
		if err != nil {
			fsm.SendError(id, types.ErrInvalidRequest)
			return
		}
		s := string(raw)
		memo = &s
	}
	if err := fsm.Broker().AddInvitation(types.InvitationCode(code), types.InvitationKind(kind), expiry, memo); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}

func removeInvitation(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	code, _, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	if err := fsm.Broker().RemoveInvitation(types.InvitationCode(code)); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}

func listInvitations(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	entries, err := fsm.Broker().ListInvitations()
	if err != nil {
		fsm.SendError(id, types.ErrBrokerError)
		return
	}
	var buf []byte
	buf = putU32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = putId(buf, e.Code)
		buf = putU32(buf, uint32(e.Value.Kind))
		buf = putU32(buf, e.Value.Expiry)
	}
	fsm.Send(id, types.Ok, buf)
}
