package orm

import "fmt"

// QuadOp is whether a streamed quad inserts or removes a triple (spec
// §4.I "a stream of quad inserts/removes from the store").
type QuadOp int

const (
	QuadInsert QuadOp = iota
	QuadRemove
)

// Quad is one (subject, predicate, object) change from the graph
// store driving the update protocol. Object is either a literal
// string or, for a typed-child predicate, the child subject's IRI.
type Quad struct {
	Op        QuadOp
	Subject   string
	Predicate string
	Object    string
	IsChild   bool // true iff Object names a typed-child subject
}

// SubjectChange accumulates every predicate change touching one
// subject within a single update pass (spec §4.I step 1).
type SubjectChange struct {
	Iri     string
	Added   map[string][]string
	Removed map[string][]string
}

func newSubjectChange(iri string) *SubjectChange {
	return &SubjectChange{Iri: iri, Added: make(map[string][]string), Removed: make(map[string][]string)}
}

// PatchOp is the kind of structural edit an OrmPatch applies to the
// subscriber's local projection (spec §6 "Patch shape").
type PatchOp int

const (
	PatchAdd PatchOp = iota
	PatchRemove
)

// PatchValType tags what a patch's Value holds (spec §4.I "Patch
// shape ... val_type:set|object|none").
type PatchValType int

const (
	ValNone PatchValType = iota
	ValSet
	ValObject
)

// OrmPatch is one structural edit sent to a subscriber (spec §4.I
// "Patch shape. OrmPatch { op:add|remove, val_type:set|object|none,
// path:jsonpath, value? }").
type OrmPatch struct {
	Op      PatchOp
	ValType PatchValType
	Path    string
	Value   interface{}
}

// OrmUpdateBlankNodeIds maps a JSON path to the skolemized IRI newly
// assigned to the object found there (spec §4.I step 3).
type OrmUpdateBlankNodeIds struct {
	Assignments map[string]string
}

// OrmDiff is the result of applying one batch of quads to a
// subscription: the blank-node assignments made along the way (if
// any) followed by the structural patches.
type OrmDiff struct {
	BlankNodeIds *OrmUpdateBlankNodeIds
	Patches      []OrmPatch
}

// groupBySubject buckets a flat quad stream into one SubjectChange
// per affected subject, preserving encounter order for determinism.
func groupBySubject(quads []Quad) ([]*SubjectChange, map[string]*SubjectChange) {
	order := make([]*SubjectChange, 0)
	byIri := make(map[string]*SubjectChange)
	for _, q := range quads {
		sc, ok := byIri[q.Subject]
		if !ok {
			sc = newSubjectChange(q.Subject)
			byIri[q.Subject] = sc
			order = append(order, sc)
		}
		switch q.Op {
		case QuadInsert:
			sc.Added[q.Predicate] = append(sc.Added[q.Predicate], q.Object)
		case QuadRemove:
			sc.Removed[q.Predicate] = append(sc.Removed[q.Predicate], q.Object)
		}
	}
	return order, byIri
}

// ApplyQuads runs the full update protocol of spec §4.I over quads,
// skolemizing any newly created subject that has no IRI (Subject ==
// "" in the inserted quad, per convention — see skolem.go), then
// computing each affected subject's new validity and emitting the
// minimal or whole-object patches the transition requires.
//
// Mutation and validity recomputation are separate passes over the
// batch: a quad batch frequently touches a parent and a freshly
// created child in the same round (spec §8 scenario 6's (:a knows
// :b) plus (:b name "Bob")), and building the parent's whole-object
// patch before the child's own validity has settled would project an
// empty "knows" slot. So every touched subject's slots are mutated
// first, then validity is re-derived to a fixed point across the
// whole touched set, and only then are patches built from each
// subject's pre-batch and post-batch validity.
func (s *Subscription) ApplyQuads(quads []Quad) *OrmDiff {
	quads, assignments := s.skolemizeNewSubjects(quads)

	order, _ := groupBySubject(quads)
	diff := &OrmDiff{}
	if len(assignments) > 0 {
		diff.BlankNodeIds = &OrmUpdateBlankNodeIds{Assignments: assignments}
	}

	touched := make([]int, 0, len(order))
	before := make(map[string]Validity, len(order))
	touchedSet := make(map[string]bool, len(order))

	for _, sc := range order {
		idx := s.getOrCreate(sc.Iri, s.Shape)
		sub := s.arena[idx]
		before[sc.Iri] = sub.Validity
		touched = append(touched, idx)
		touchedSet[sc.Iri] = true

		for pred, vals := range sc.Removed {
			schema, ok := sub.Shape.predicate(pred)
			if !ok {
				continue
			}
			sv := sub.Slots[pred]
			if sv == nil {
				continue
			}
			for _, v := range vals {
				if schema.Kind == PredicateTypedChild {
					if childIdx, ok := s.index[v]; ok {
						sv.children = removeChild(sv.children, childIdx)
						s.removeBackref(childIdx, idx, pred)
					}
				} else {
					sv.literals = removeLiteral(sv.literals, v)
				}
			}
		}
		for pred, vals := range sc.Added {
			schema, ok := sub.Shape.predicate(pred)
			if !ok {
				continue
			}
			sv := sub.Slots[pred]
			if sv == nil {
				sv = &slotValue{}
				sub.Slots[pred] = sv
			}
			for _, v := range vals {
				if schema.Kind == PredicateTypedChild {
					childIdx := s.getOrCreate(v, schema.ChildShape)
					sv.children = append(sv.children, childIdx)
					s.addBackref(childIdx, idx, pred)
				} else {
					sv.literals = append(sv.literals, v)
				}
			}
		}
	}

	// Fixed-point revalidation: a touched subject's validity can
	// depend on another touched subject's (its child's) validity, and
	// those may appear in either order within the batch, so keep
	// reapplying recomputeValidity across the touched set until a
	// full pass produces no further change.
	for changed := true; changed; {
		changed = false
		for _, idx := range touched {
			sub := s.arena[idx]
			if v := s.recomputeValidity(sub); v != sub.Validity {
				sub.Validity = v
				changed = true
			}
		}
	}

	changedIris := make(map[string]bool, len(order))
	for _, sc := range order {
		sub := s.arena[s.index[sc.Iri]]
		after := sub.Validity
		diff.Patches = append(diff.Patches, s.transitionPatches(sub, before[sc.Iri], after, sc)...)
		if before[sc.Iri] != after {
			changedIris[sc.Iri] = true
		}
	}

	diff.Patches = append(diff.Patches, s.cascadeValidity(changedIris, touchedSet)...)
	return diff
}

// cascadeValidity re-derives validity for every parent referencing a
// subject whose validity changed this round, propagating transitively
// until a round produces no further change. touchedSet holds every
// subject ApplyQuads already patched directly in this batch — such a
// parent's own before/after patch already reflects its children's
// final validity (see the fixed-point pass above), so cascading into
// it again here would emit a redundant follow-up patch on top of the
// whole-object patch it already got. A parent outside the batch that
// stays Valid before and after gets a targeted remove/add patch on
// the specific child slot (spec §8 scenario 6: "b transitions to
// Invalid, emitting a remove patch for the nested object under
// /a/knows"); one whose own validity flips gets the whole-object
// patch and is added to the worklist so the cascade keeps climbing.
func (s *Subscription) cascadeValidity(changed map[string]bool, touchedSet map[string]bool) []OrmPatch {
	var patches []OrmPatch
	worklist := make([]string, 0, len(changed))
	for iri := range changed {
		worklist = append(worklist, iri)
	}

	for len(worklist) > 0 {
		iri := worklist[0]
		worklist = worklist[1:]
		childIdx, ok := s.index[iri]
		if !ok {
			continue
		}
		childSub := s.arena[childIdx]
		for _, ref := range append([]backref{}, s.backrefs[childIdx]...) {
			parentSub := s.subjectAt(ref.parent)
			if parentSub == nil || touchedSet[parentSub.Iri] {
				continue
			}
			before := parentSub.Validity
			after := s.recomputeValidity(parentSub)
			parentSub.Validity = after

			switch {
			case before == Valid && after == Valid:
				op := PatchAdd
				if childSub.Validity != Valid {
					op = PatchRemove
				}
				patches = append(patches, OrmPatch{
					Op:      op,
					ValType: ValObject,
					Path:    fmt.Sprintf("/%s/%s", parentSub.Iri, ref.pred),
					Value:   s.project(childSub),
				})
			case before != after:
				patches = append(patches, s.transitionPatches(parentSub, before, after, newSubjectChange(parentSub.Iri))...)
				worklist = append(worklist, parentSub.Iri)
			}
		}
	}
	return patches
}

// transitionPatches implements the Valid/Invalid lattice rule of
// spec §4.I step 2: Valid→Invalid removes the whole projected
// object; Invalid→Valid adds the whole projected object; Valid→Valid
// emits only the changed slots.
func (s *Subscription) transitionPatches(sub *TrackedSubject, before, after Validity, sc *SubjectChange) []OrmPatch {
	path := fmt.Sprintf("/%s", sub.Iri)
	switch {
	case before == Valid && after != Valid:
		return []OrmPatch{{Op: PatchRemove, ValType: ValObject, Path: path, Value: nil}}
	case before != Valid && after == Valid:
		return []OrmPatch{{Op: PatchAdd, ValType: ValObject, Path: path, Value: s.project(sub)}}
	case before == Valid && after == Valid:
		return s.minimalSlotPatches(sub, sc, path)
	default:
		return nil
	}
}

// minimalSlotPatches emits one set-membership patch per literal add
// or remove recorded in sc, covering only the changed slots (spec
// §4.I "Valid→Valid emits a minimal OrmDiff covering only changed
// slots").
func (s *Subscription) minimalSlotPatches(sub *TrackedSubject, sc *SubjectChange, path string) []OrmPatch {
	var patches []OrmPatch
	for pred, vals := range sc.Added {
		for _, v := range vals {
			patches = append(patches, OrmPatch{Op: PatchAdd, ValType: ValSet, Path: path + "/" + pred, Value: v})
		}
	}
	for pred, vals := range sc.Removed {
		for _, v := range vals {
			patches = append(patches, OrmPatch{Op: PatchRemove, ValType: ValSet, Path: path + "/" + pred, Value: v})
		}
	}
	return patches
}

// project builds the whole projected object for sub: predicate name
// to literal list / nested child object list (spec §8 scenario 6
// "knows=[{iri::b, name:\"Bob\"}]"). visiting guards against infinite
// recursion on a cycle of mutually Valid subjects (A knows B knows A).
func (s *Subscription) project(sub *TrackedSubject) map[string]interface{} {
	return s.projectVisiting(sub, make(map[string]bool))
}

func (s *Subscription) projectVisiting(sub *TrackedSubject, visiting map[string]bool) map[string]interface{} {
	obj := make(map[string]interface{})
	obj["iri"] = sub.Iri
	if visiting[sub.Iri] {
		return obj
	}
	visiting[sub.Iri] = true
	defer delete(visiting, sub.Iri)

	for pred, sv := range sub.Slots {
		schema, ok := sub.Shape.predicate(pred)
		if !ok {
			continue
		}
		if schema.Kind == PredicateTypedChild {
			children := make([]map[string]interface{}, 0, len(sv.children))
			for _, idx := range sv.children {
				if child := s.subjectAt(idx); child != nil && child.Validity == Valid {
					children = append(children, s.projectVisiting(child, visiting))
				}
			}
			obj[pred] = children
		} else {
			obj[pred] = append([]string{}, sv.literals...)
		}
	}
	return obj
}

func removeLiteral(vals []string, v string) []string {
	out := vals[:0]
	for _, x := range vals {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func removeChild(idxs []int, v int) []int {
	out := idxs[:0]
	for _, x := range idxs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
