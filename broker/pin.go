package broker

import (
	"nextgraph.dev/broker/entities"
	"nextgraph.dev/broker/types"
)

// RepoOpened is returned by pin_repo_write/pin_repo_read: the set of
// topics the caller is now pinned to, ready for topic_sub (spec
// §4.D "pin_repo_write/read ... RepoOpened").
type RepoOpened struct {
	Repo   types.RepoHash
	Topics []types.TopicId
}

// TopicSubRes acknowledges a topic_sub call with the topic's current
// heads, so the caller can immediately issue topic_sync_req.
type TopicSubRes struct {
	Topic types.TopicId
	Heads []types.ObjectId
}

// PinRepoWrite pins repoHash for write access (spec §4.D
// "pin_repo_write"). Policy: rwTopics must be non-empty whenever
// exposeOuter is set; a WriteOnly access kind may not exposeOuter;
// and exposeOuter additionally requires that access.Read already
// exists as an Outer overlay record linked to access.Write (spec §3
// "expose_outer non-empty ⇒ an outer overlay must exist"). Every
// advert in adverts is verified against b.PeerID; a single failure
// refuses the whole request with ErrInvalidSignature.
func (b *Broker) PinRepoWrite(
	access types.OverlayAccess,
	repoHash types.RepoHash,
	user types.UserId,
	roTopics, rwTopics []types.TopicId,
	overlayRootTopic *types.TopicId,
	exposeOuter bool,
	adverts []types.PublisherAdvert,
) (*RepoOpened, error) {
	if exposeOuter && len(rwTopics) == 0 {
		return nil, types.ErrInvalidRequest
	}
	if access.Kind == types.AccessWriteOnly && exposeOuter {
		return nil, types.ErrInvalidRequest
	}
	if exposeOuter {
		// The original ng-net validates this by checking the
		// overlay-id-level is_inner()/is_outer() tags baked into the
		// id's own encoding. This repo's OverlayId carries no such tag —
		// "inner" vs "outer" is tracked by the persisted Overlay
		// record's OverlayType instead — so the equivalent check here
		// is that access.Read already exists as an Outer overlay record
		// pointing back at access.Write (spec §3 "expose_outer
		// non-empty ⇒ an outer overlay must exist").
		outer, err := entities.OpenOverlay(b.kcvStore, access.Read)
		if err != nil {
			return nil, types.ErrInvalidRequest
		}
		outerType, err := outer.Type()
		if err != nil {
			return nil, types.ErrInvalidRequest
		}
		if outerType.Kind != types.OverlayOuter || outerType.Inner == nil || *outerType.Inner != access.Write {
			return nil, types.ErrInvalidRequest
		}
	}
	for _, adv := range adverts {
		if err := adv.VerifyForBroker(b.PeerID); err != nil {
			return nil, types.ErrInvalidSignature
		}
	}

	overlay := access.Overlay()
	repo := entities.OpenOrCreateRepo(b.kcvStore, overlay, repoHash)
	all := append(append([]types.TopicId{}, roTopics...), rwTopics...)
	for _, t := range all {
		if !repo.HasTopic(t) {
			if err := repo.AddTopic(t); err != nil {
				return nil, types.ErrBrokerError
			}
		}
	}
	if overlayRootTopic != nil {
		ov, err := entities.OpenOverlay(b.kcvStore, overlay)
		if err == nil {
			_ = ov.SetRootTopic(*overlayRootTopic)
		}
	}
	if exposeOuter {
		if err := repo.AddExposeOuter(user); err != nil {
			return nil, types.ErrBrokerError
		}
	}
	return &RepoOpened{Repo: repoHash, Topics: all}, nil
}

// PinRepoRead pins repoHash for read-only access (spec §4.D
// "pin_repo_read"). Policy: no rwTopics, no overlay_root_topic.
func (b *Broker) PinRepoRead(overlay types.OverlayId, repoHash types.RepoHash, user types.UserId, roTopics []types.TopicId) (*RepoOpened, error) {
	repo := entities.OpenOrCreateRepo(b.kcvStore, overlay, repoHash)
	for _, t := range roTopics {
		if !repo.HasTopic(t) {
			if err := repo.AddTopic(t); err != nil {
				return nil, types.ErrBrokerError
			}
		}
	}
	return &RepoOpened{Repo: repoHash, Topics: roTopics}, nil
}

// GetRepoPinStatus reports whether repoHash is currently pinned
// (has any topics recorded) for overlay.
func (b *Broker) GetRepoPinStatus(overlay types.OverlayId, repoHash types.RepoHash, user types.UserId) (bool, error) {
	repo := entities.OpenOrCreateRepo(b.kcvStore, overlay, repoHash)
	topics, err := repo.Topics()
	if err != nil {
		return false, types.ErrBrokerError
	}
	return len(topics) > 0, nil
}
