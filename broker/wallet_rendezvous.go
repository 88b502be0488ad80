package broker

import "nextgraph.dev/broker/types"

// PutWalletExport stashes wallet for id outside of any rendezvous
// wait, to be collected once by GetWalletExport (spec §4.D
// "put_wallet_export(id, wallet)").
func (b *Broker) PutWalletExport(id types.RendezvousId, wallet []byte) {
	b.rendezvousMu.Lock()
	defer b.rendezvousMu.Unlock()
	b.pending[id] = wallet
}

// GetWalletExport pops a non-rendezvous put once, failing NotFound if
// none is pending (spec §4.D "get_wallet_export(id) pops a
// non-rendezvous put once").
func (b *Broker) GetWalletExport(id types.RendezvousId) ([]byte, error) {
	b.rendezvousMu.Lock()
	defer b.rendezvousMu.Unlock()
	w, ok := b.pending[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	delete(b.pending, id)
	return w, nil
}

// WaitForWalletAtRendezvous registers a single-shot waiter for id and
// blocks on it. Exactly one waiter receives the wallet delivered by a
// matching PutWalletAtRendezvous; every other concurrent waiter
// receives a terminal error once the rendezvous is claimed and
// removed (spec §8 "Rendezvous single-shot").
func (b *Broker) WaitForWalletAtRendezvous(id types.RendezvousId) ([]byte, error) {
	w := &rendezvousWaiter{ch: make(chan rendezvousResult, 1)}
	b.rendezvousMu.Lock()
	b.waiters[id] = append(b.waiters[id], w)
	b.rendezvousMu.Unlock()

	res := <-w.ch
	if res.err != types.Ok {
		return nil, res.err
	}
	return res.wallet, nil
}

// PutWalletAtRendezvous delivers wallet to exactly one waiter for id,
// if any exist, then removes the rendezvous entirely; every other
// waiter receives types.ErrBrokerError. It fails with
// types.ErrBrokerError itself if no waiter was registered.
func (b *Broker) PutWalletAtRendezvous(id types.RendezvousId, wallet []byte) error {
	b.rendezvousMu.Lock()
	waiters := b.waiters[id]
	delete(b.waiters, id)
	b.rendezvousMu.Unlock()

	if len(waiters) == 0 {
		return types.ErrBrokerError
	}
	waiters[0].ch <- rendezvousResult{wallet: wallet, err: types.Ok}
	for _, w := range waiters[1:] {
		w.ch <- rendezvousResult{err: types.ErrBrokerError}
	}
	return nil
}
