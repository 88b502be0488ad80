package orm

import "nextgraph.dev/broker/types"

// ReversePatch flips p's op (insert<->remove) while keeping its path
// and value unchanged (spec §4.I step 4 "produces a reversal patch
// (insert<->remove, with the same path)").
func ReversePatch(p OrmPatch) OrmPatch {
	rev := p
	if p.Op == PatchAdd {
		rev.Op = PatchRemove
	} else {
		rev.Op = PatchAdd
	}
	return rev
}

// ApplyFrontendPatch validates an incoming patch from a subscriber
// against schema before applying it. A patch on a subject the
// subscription does not track is a validation failure, except an add
// under an Open shape, which starts tracking that subject. On
// validation failure it returns the patch's reversal and
// types.ErrInvalidRequest, so the caller can send
// the reversal before the error, leaving the subscriber's local state
// consistent; on success it returns the resulting OrmDiff — the same
// skolem assignments and structural patches ApplyQuads produces —
// for the caller to forward (spec §4.I step 4).
func (s *Subscription) ApplyFrontendPatch(p OrmPatch) (*OrmDiff, *OrmPatch, error) {
	iri, pred, ok := splitPatchPath(p.Path)
	if !ok {
		rev := ReversePatch(p)
		return nil, &rev, types.ErrInvalidRequest
	}
	sub, ok := s.Get(iri)
	shape := s.Shape
	if ok {
		shape = sub.Shape
	} else if !s.Shape.Open || p.Op != PatchAdd {
		rev := ReversePatch(p)
		return nil, &rev, types.ErrInvalidRequest
	}
	if _, ok := shape.predicate(pred); !ok {
		rev := ReversePatch(p)
		return nil, &rev, types.ErrInvalidRequest
	}

	value, _ := p.Value.(string)
	op := QuadInsert
	if p.Op == PatchRemove {
		op = QuadRemove
	}
	diff := s.ApplyQuads([]Quad{{Op: op, Subject: iri, Predicate: pred, Object: value}})
	return diff, nil, nil
}

// splitPatchPath splits a "/subjectIri/predicate" path into its two
// segments (spec §4.I "path uses /-delimited segments").
func splitPatchPath(path string) (iri, pred string, ok bool) {
	if len(path) == 0 || path[0] != '/' {
		return "", "", false
	}
	rest := path[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
