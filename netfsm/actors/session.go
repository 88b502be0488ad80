package actors

import (
	"nextgraph.dev/broker/broker"
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/orm"
	"nextgraph.dev/broker/types"
)

// RegisterSessionActors binds app_session_start/stop/process_request
// (spec §4.D "App session").
func RegisterSessionActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindAppSessionStart, appSessionStart)
	d.Register(netfsm.KindAppSessionStop, appSessionStop)
	d.Register(netfsm.KindAppProcessRequest, appProcessRequest)
}

func appSessionStart(fsm *netfsm.FSM, id int64, content []byte) {
	user, _, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	resp, _ := fsm.Broker().AppSessionStart(broker.AppSessionStartRequest{User: types.UserId(user)}, fsm.PeerID(), fsm.Broker().PeerID)
	fsm.Send(id, types.Ok, putU64(nil, resp.SessionId))
}

func appSessionStop(fsm *netfsm.FSM, id int64, content []byte) {
	sessionId, _, err := takeU64(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	fsm.Broker().AppSessionStop(sessionId)
	fsm.Send(id, types.Ok, nil)
}

// appProcessRequest's content, after the session id, is one frontend
// ORM patch (spec §4.I step 4 "On any validation failure of an
// incoming frontend patch, the ORM produces a reversal patch..."): a
// remove flag, a "/subjectIri/predicate" path and a literal value.
// There is no wire-level Shape declaration, so the patch is validated
// against the session's permissive orm.GenericShape (see
// broker.AppSession.ORM).
func appProcessRequest(fsm *netfsm.FSM, id int64, content []byte) {
	sessionId, rest, err := takeU64(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	isRemove, rest, err := takeBool(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	pathBytes, rest, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	valueBytes, _, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	op := orm.PatchAdd
	if isRemove {
		op = orm.PatchRemove
	}
	patch := orm.OrmPatch{Op: op, ValType: orm.ValSet, Path: string(pathBytes), Value: string(valueBytes)}

	diff, rev, err := fsm.Broker().SessionApplyOrmPatch(sessionId, patch)
	if err != nil {
		if rev != nil {
			fsm.Send(id, types.ErrPartialContent, encodeOrmPatch(*rev))
		}
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, encodeOrmDiff(diff))
}

func encodeOrmPatch(p orm.OrmPatch) []byte {
	var buf []byte
	buf = putBool(buf, p.Op == orm.PatchRemove)
	buf = putBytes(buf, []byte(p.Path))
	value, _ := p.Value.(string)
	buf = putBytes(buf, []byte(value))
	return buf
}

func encodeOrmDiff(d *orm.OrmDiff) []byte {
	var buf []byte
	if d == nil || d.BlankNodeIds == nil || len(d.BlankNodeIds.Assignments) == 0 {
		buf = putBool(buf, false)
		return buf
	}
	buf = putBool(buf, true)
	buf = putU32(buf, uint32(len(d.BlankNodeIds.Assignments)))
	for path, iri := range d.BlankNodeIds.Assignments {
		buf = putBytes(buf, []byte(path))
		buf = putBytes(buf, []byte(iri))
	}
	return buf
}
