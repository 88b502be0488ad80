package actors

import "nextgraph.dev/broker/netfsm"

// RegisterAll binds every known request kind's responder into d.
func RegisterAll(d *netfsm.Dispatcher) {
	RegisterUserActors(d)
	RegisterInvitationActors(d)
	RegisterPinActors(d)
	RegisterTopicActors(d)
	RegisterInboxActors(d)
	RegisterWalletActors(d)
	RegisterSessionActors(d)
}
