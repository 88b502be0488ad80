package actors

import (
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterUserActors binds the user-management request kinds (spec
// §4.D "add_user/del_user/list_users").
func RegisterUserActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindAddUser, addUser)
	d.Register(netfsm.KindDelUser, delUser)
	d.Register(netfsm.KindListUsers, listUsers)
}

func addUser(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	user, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	isAdmin, _, err := takeBool(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	fsm.Broker().AddUser(types.UserId(user), isAdmin)
	fsm.Send(id, types.Ok, nil)
}

func delUser(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	user, _, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	fsm.Broker().DelUser(types.UserId(user))
	fsm.Send(id, types.Ok, nil)
}

func listUsers(fsm *netfsm.FSM, id int64, content []byte) {
	if !requireAdmin(fsm) {
		denyAdmin(fsm, id)
		return
	}
	adminsOnly, _, err := takeBool(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	users := fsm.Broker().ListUsers(adminsOnly)
	ids := make([][32]byte, len(users))
	for i, u := range users {
		ids[i] = u
	}
	fsm.Send(id, types.Ok, putIdList(nil, ids))
}
