package actors

import (
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/types"
)

// RegisterWalletActors binds wallet export/rendezvous request kinds
// (spec §4.D "Wallet rendezvous").
func RegisterWalletActors(d *netfsm.Dispatcher) {
	d.Register(netfsm.KindPutWalletExport, putWalletExport)
	d.Register(netfsm.KindGetWalletExport, getWalletExport)
	d.Register(netfsm.KindWaitForWalletAtRendezvous, waitForWalletAtRendezvous)
	d.Register(netfsm.KindPutWalletAtRendezvous, putWalletAtRendezvous)
}

func putWalletExport(fsm *netfsm.FSM, id int64, content []byte) {
	rid, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	wallet, _, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	fsm.Broker().PutWalletExport(types.RendezvousId(rid), wallet)
	fsm.Send(id, types.Ok, nil)
}

func getWalletExport(fsm *netfsm.FSM, id int64, content []byte) {
	rid, _, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	wallet, err := fsm.Broker().GetWalletExport(types.RendezvousId(rid))
	if err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, putBytes(nil, wallet))
}

// waitForWalletAtRendezvous blocks the responder goroutine, not the
// FSM read loop, so other requests on the same connection keep
// flowing while this one waits (spec §4.E "a responder may stream
// many partial responses", extended here to "may block entirely").
func waitForWalletAtRendezvous(fsm *netfsm.FSM, id int64, content []byte) {
	rid, _, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	done := make(chan struct{})
	var wallet []byte
	var waitErr error
	go func() {
		wallet, waitErr = fsm.Broker().WaitForWalletAtRendezvous(types.RendezvousId(rid))
		close(done)
	}()
	select {
	case <-done:
	case <-fsm.CloseSignal():
		return
	}
	if waitErr != nil {
		fsm.SendError(id, waitErr.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, putBytes(nil, wallet))
}

func putWalletAtRendezvous(fsm *netfsm.FSM, id int64, content []byte) {
	rid, rest, err := takeId(content)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	wallet, _, err := takeBytes(rest)
	if err != nil {
		fsm.SendError(id, types.ErrInvalidRequest)
		return
	}
	if err := fsm.Broker().PutWalletAtRendezvous(types.RendezvousId(rid), wallet); err != nil {
		fsm.SendError(id, err.(types.ServerError))
		return
	}
	fsm.Send(id, types.Ok, nil)
}
