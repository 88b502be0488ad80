package entities

import (
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

var (
	sufRepoTopics      byte = 0x01
	sufRepoExposeOuter byte = 0x02
)

var repoTopicsCol = kcv.MultiValueColumn[types.TopicId]{
	Suffix: sufRepoTopics,
	Encode: encodeId32[types.TopicId],
	Decode: decodeId32[types.TopicId],
}

var repoExposeOuterCol = kcv.MultiValueColumn[types.UserId]{
	Suffix: sufRepoExposeOuter,
	Encode: encodeId32[types.UserId],
	Decode: decodeId32[types.UserId],
}

// Repo is the persistent view keyed by overlay||repo_hash (spec §3
// "Repo (no prefix; key=OverlayId||RepoHash)"): it tracks the repo's
// topic membership and which users may see it through an outer
// overlay.
type Repo struct {
	kcv.Base
	Overlay types.OverlayId
	Hash    types.RepoHash
}

func repoKey(overlay types.OverlayId, hash types.RepoHash) []byte {
	k := make([]byte, 0, 64)
	k = append(k, overlay.Bytes()...)
	k = append(k, hash.Bytes()...)
	return k
}

func OpenOrCreateRepo(s kcv.Storage, overlay types.OverlayId, hash types.RepoHash) *Repo {
	return &Repo{kcv.Base{S: s, P: prefixRepo, K: repoKey(overlay, hash)}, overlay, hash}
}

func (r *Repo) AddTopic(id types.TopicId) error { return repoTopicsCol.Add(r, id) }

func (r *Repo) Topics() ([]types.TopicId, error) { return repoTopicsCol.GetAll(r) }

func (r *Repo) HasTopic(id types.TopicId) bool { return repoTopicsCol.Has(r, id) }

// AddExposeOuter records that user may reach this repo via an outer
// overlay. Callers must verify an outer overlay exists before calling
// this (spec §3 invariant "expose_outer non-empty => an outer overlay
// must exist").
func (r *Repo) AddExposeOuter(user types.UserId) error { return repoExposeOuterCol.Add(r, user) }

func (r *Repo) ExposeOuter() ([]types.UserId, error) { return repoExposeOuterCol.GetAll(r) }

func (r *Repo) Del(s kcv.Storage) error {
	return s.WriteTransaction(func(tx kcv.WriteTx) error {
		if err := tx.DelAllValues(r.Prefix(), r.Key(), &sufRepoTopics); err != nil {
			return err
		}
		return tx.DelAllValues(r.Prefix(), r.Key(), &sufRepoExposeOuter)
	})
}
