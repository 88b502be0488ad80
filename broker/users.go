package broker

import (
	"crypto/rand"

	"nextgraph.dev/broker/entities"
	"nextgraph.dev/broker/types"
)

// CreateUser mints a fresh headless UserId for broker (spec §4.D
// "create_user(broker_id) -> UserId").
func (b *Broker) CreateUser() (types.UserId, error) {
	var id types.UserId
	if _, err := rand.Read(id[:]); err != nil {
		return id, types.ErrBrokerError
	}
	entities.OpenOrCreateAccount(b.kcvStore, id)
	return id, nil
}

// AddUser registers user as a known account and, if isAdmin, grants
// it admin status (spec §4.D "add_user(user, is_admin)").
func (b *Broker) AddUser(user types.UserId, isAdmin bool) error {
	entities.OpenOrCreateAccount(b.kcvStore, user)
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	b.users[user] = true
	if isAdmin {
		b.admins[user] = true
	}
	return nil
}

// DelUser removes user from the in-memory index; the underlying
// account record is left in place (spec leaves inbox/account
// retention unspecified on delete).
func (b *Broker) DelUser(user types.UserId) error {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	delete(b.users, user)
	delete(b.admins, user)
	return nil
}

// ListUsers returns admin users when adminsOnly is set, otherwise
// every known user (spec §4.D "list_users(admins_only?)").
func (b *Broker) ListUsers(adminsOnly bool) []types.UserId {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	src := b.users
	if adminsOnly {
		src = b.admins
	}
	out := make([]types.UserId, 0, len(src))
	for u := range src {
		out = append(out, u)
	}
	return out
}

// IsAdmin reports whether user currently holds admin status (spec
// §6 "Start(variant): Admin requires the requester's public key to
// equal the configured admin_user").
func (b *Broker) IsAdmin(user types.UserId) bool {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.admins[user]
}
