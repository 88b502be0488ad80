// Package broker implements the in-memory server orchestrator of
// spec §4.D: the business operations of component D, consulting
// component C (entities) atop component A (kcv) and component B
// (block).
package broker

import (
	"sync"

	"github.com/eapache/channels"
	logging "github.com/op/go-logging"

	"nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

var log = logging.MustGetLogger("broker")

// SetLogBackend rebinds this package's logger onto backend, the way
// server.go's newLogger binds every subsystem logger onto its shared
// logBackend.
func SetLogBackend(backend logging.LeveledBackend) {
	log.SetBackend(backend)
}

// topicKey identifies a topic across overlays for the in-memory
// fan-out index (spec §4.H).
type topicKey struct {
	Overlay types.OverlayId
	Topic   types.TopicId
}

// subscription is one client's live interest in a topic.
type subscription struct {
	Peer types.PeerId
	// Send delivers an Event to this subscriber; wired by the FSM
	// layer to an actual connection writer.
	Send func(types.Event)
}

// rendezvousWaiter is a single-shot delivery channel for wallet
// export rendezvous (spec §4.D "Wallet rendezvous").
type rendezvousWaiter struct {
	ch chan rendezvousResult
}

type rendezvousResult struct {
	wallet []byte
	err    types.ServerError
}

// Broker is the in-memory orchestrator. It keeps users, admins, topic
// subscribers, publisher sequence numbers, rendezvous waiters and app
// sessions in memory and reads persistent records through package
// entities on each call. It is built around a background worker
// fed by an unbounded channel and a halt channel for graceful
// shutdown, generalized from mix packet routing to the broker's
// business operations.
type Broker struct {
	sync.WaitGroup

	PeerID types.PeerId

	kcvStore   kcv.Storage
	blockStore block.Store

	cfgMu  sync.RWMutex
	users  map[types.UserId]bool
	admins map[types.UserId]bool

	topicsMu sync.RWMutex
	// fanout maps a topic to its live subscriber set (spec §4.H).
	fanout map[topicKey]map[types.PeerId]*subscription

	seqMu sync.Mutex
	// lastSeq enforces next_seq_for_peer monotonicity (spec §5).
	lastSeq map[types.PeerId]uint64

	rendezvousMu sync.Mutex
	waiters      map[types.RendezvousId][]*rendezvousWaiter
	pending      map[types.RendezvousId][]byte

	sessionsMu sync.RWMutex
	sessions   map[uint64]*AppSession

	ch     *channels.InfiniteChannel
	haltCh chan struct{}
}

// New constructs a Broker over the given storage backends. peerID is
// this broker's own identity, checked against PublisherAdvert.Broker
// and the configured admin user.
func New(peerID types.PeerId, kcvStore kcv.Storage, blockStore block.Store) *Broker {
	b := &Broker{
		PeerID:     peerID,
		kcvStore:   kcvStore,
		blockStore: blockStore,
		users:      make(map[types.UserId]bool),
		admins:     make(map[types.UserId]bool),
		fanout:     make(map[topicKey]map[types.PeerId]*subscription),
		lastSeq:    make(map[types.PeerId]uint64),
		waiters:    make(map[types.RendezvousId][]*rendezvousWaiter),
		pending:    make(map[types.RendezvousId][]byte),
		sessions:   make(map[uint64]*AppSession),
		ch:         channels.NewInfiniteChannel(),
		haltCh:     make(chan struct{}),
	}
	b.Add(1)
	go b.worker()
	return b
}

// worker runs each func() value received on b.ch until Halt closes
// haltCh; values of any other type are dropped. Nothing in this
// package sends on b.ch.
func (b *Broker) worker() {
	defer b.Done()
	out := b.ch.Out()
	for {
		select {
		case <-b.haltCh:
			log.Debug("broker worker halting")
			return
		case e, ok := <-out:
			if !ok {
				return
			}
			if fn, isFn := e.(func()); isFn {
				fn()
			}
		}
	}
}

// Halt stops the background worker and closes storage, in that order
// so no write lands after the store is closed.
func (b *Broker) Halt() {
	close(b.haltCh)
	b.Wait()
	b.ch.Close()
	if b.kcvStore != nil {
		b.kcvStore.Close()
	}
	if b.blockStore != nil {
		b.blockStore.Close()
	}
}

func (b *Broker) Storage() kcv.Storage { return b.kcvStore }

func (b *Broker) Blocks() block.Store { return b.blockStore }
