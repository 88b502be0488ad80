package broker

import (
	"sync"

	"nextgraph.dev/broker/orm"
	"nextgraph.dev/broker/types"
)

// AppSessionStartRequest carries what the application layer needs to
// open a session over an already-authenticated connection (spec §4.D
// "app_session_start").
type AppSessionStartRequest struct {
	User types.UserId
}

// AppSessionStartResponse acknowledges a session open with the
// session id the caller must use on subsequent app_process_request
// calls.
type AppSessionStartResponse struct {
	SessionId uint64
}

// AppSession tracks one application session's lifecycle.
type AppSession struct {
	Id         uint64
	User       types.UserId
	RemotePeer types.PeerId
	LocalPeer  types.PeerId

	orm *orm.Subscription
}

// ORM returns the session's frontend-patch projection, creating it
// under orm.GenericShape on first use (spec §4.I step 4).
func (s *AppSession) ORM() *orm.Subscription {
	if s.orm == nil {
		s.orm = orm.NewSubscription(orm.GenericShape)
	}
	return s.orm
}

var sessionIdSeq struct {
	mu   sync.Mutex
	next uint64
}

func nextSessionId() uint64 {
	sessionIdSeq.mu.Lock()
	defer sessionIdSeq.mu.Unlock()
	sessionIdSeq.next++
	return sessionIdSeq.next
}

// AppSessionStart opens a session for req, returning its id (spec
// §4.D "app_session_start(req, remote_peer, local_peer) ->
// AppSessionStartResponse").
func (b *Broker) AppSessionStart(req AppSessionStartRequest, remotePeer, localPeer types.PeerId) (*AppSessionStartResponse, *AppSession) {
	sess := &AppSession{Id: nextSessionId(), User: req.User, RemotePeer: remotePeer, LocalPeer: localPeer}
	b.sessionsMu.Lock()
	b.sessions[sess.Id] = sess
	b.sessionsMu.Unlock()
	return &AppSessionStartResponse{SessionId: sess.Id}, sess
}

// AppSessionStop tears down a session (spec §4.D "app_session_stop").
func (b *Broker) AppSessionStop(id uint64) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	delete(b.sessions, id)
}

// AppProcessRequest is a placeholder dispatch point: actual request
// decoding and streaming of responses back through the FSM lives in
// package netfsm/actors (spec §4.D "app_process_request(req, id,
// fsm) -> () (responses are streamed by the broker through the FSM
// keyed by id)"); this method only validates the session still
// exists.
func (b *Broker) AppProcessRequest(sessionId uint64) (*AppSession, error) {
	b.sessionsMu.RLock()
	defer b.sessionsMu.RUnlock()
	sess, ok := b.sessions[sessionId]
	if !ok {
		return nil, types.ErrInvalidRequest
	}
	return sess, nil
}

// SessionApplyOrmPatch applies a frontend patch to sessionId's ORM
// projection (spec §4.I step 4), the actual payload of an
// app_process_request call.
func (b *Broker) SessionApplyOrmPatch(sessionId uint64, p orm.OrmPatch) (*orm.OrmDiff, *orm.OrmPatch, error) {
	sess, err := b.AppProcessRequest(sessionId)
	if err != nil {
		return nil, nil, err
	}
	return sess.ORM().ApplyFrontendPatch(p)
}
