package broker

import (
	"nextgraph.dev/broker/entities"
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

// AddInvitation creates an invitation under code, failing
// types.ErrAlreadyExists if one already exists (spec §4.D
// "add_invitation(code, expiry, memo?)").
func (b *Broker) AddInvitation(code types.InvitationCode, kind types.InvitationKind, expiry uint32, memo *string) error {
	_, err := entities.CreateInvitation(b.kcvStore, code, kind, expiry, memo)
	if err == kcv.ErrAlreadyExists {
		return types.ErrAlreadyExists
	}
	if err != nil {
		return types.ErrBrokerError
	}
	return nil
}

// GetInvitationType returns the invitation's kind, failing
// types.ErrExpired if expiry (Unix seconds) has passed and
// types.ErrNotFound if the code is unknown (spec §4.D, §8 "Invitation
// expiry").
func (b *Broker) GetInvitationType(code types.InvitationCode, nowUnix uint32) (types.InvitationKind, error) {
	inv, err := entities.OpenInvitation(b.kcvStore, code)
	if err != nil {
		return 0, types.ErrNotFound
	}
	v, err := inv.Value()
	if err != nil {
		return 0, types.ErrBrokerError
	}
	if nowUnix > v.Expiry {
		return 0, types.ErrExpired
	}
	return v.Kind, nil
}

// ListInvitations returns every invitation whose kind is in kinds
// (spec §4.D "list_invitations(admin?,unique?,multi?)"); an empty
// kinds list matches everything.
func (b *Broker) ListInvitations(kinds ...types.InvitationKind) ([]entities.InvitationEntry, error) {
	all, err := entities.ListInvitations(b.kcvStore)
	if err != nil {
		return nil, types.ErrBrokerError
	}
	if len(kinds) == 0 {
		return all, nil
	}
	want := make(map[types.InvitationKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := make([]entities.InvitationEntry, 0, len(all))
	for _, e := range all {
		if want[e.Value.Kind] {
			out = append(out, e)
		}
	}
	return out, nil
}

// RemoveInvitation deletes the invitation record for code.
func (b *Broker) RemoveInvitation(code types.InvitationCode) error {
	inv, err := entities.OpenInvitation(b.kcvStore, code)
	if err != nil {
		return types.ErrNotFound
	}
	if err := inv.Del(b.kcvStore); err != nil {
		return types.ErrBrokerError
	}
	return nil
}
