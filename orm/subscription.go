package orm

// Validity is the three-state lattice of spec §4.I ("Valid | Invalid
// | Unknown. Valid iff every predicate's cardinality falls inside
// [min,max] and every typed child is Valid").
type Validity int

const (
	Unknown Validity = iota
	Valid
	Invalid
)

// slotValue holds one predicate's current object set: either literal
// strings, or arena indices of tracked child subjects.
type slotValue struct {
	literals []string
	children []int // arena indices, only meaningful for PredicateTypedChild
}

// TrackedSubject is one subject tracked under a Shape. Children are
// held as arena indices, not pointers, so cycles (A knows B knows A)
// never leak a retain cycle and validity recomputation is a plain
// index walk (DESIGN NOTES §9 "arena+index, not shared ownership").
type TrackedSubject struct {
	Iri      string
	Shape    *Shape
	Slots    map[string]*slotValue
	Validity Validity
}

// Subscription owns a map from subject IRI to TrackedSubject under a
// given Shape (spec §4.I "it holds a subscription that owns a map
// from subject_iri to TrackedSubject"). The arena/index split is the
// Go stand-in for the Rust Weak<OrmTrackedSubject> back-reference.
type Subscription struct {
	Shape  *Shape
	arena  []*TrackedSubject
	index  map[string]int
	nextBN int

	// backrefs maps a child's arena index to every (parent index,
	// predicate) slot currently pointing at it, so a child's validity
	// change can cascade to its parents without a pointer back-edge
	// (DESIGN NOTES §9 "arena+index, not shared ownership").
	backrefs map[int][]backref
}

type backref struct {
	parent int
	pred   string
}

// NewSubscription opens an empty subscription tracking subjects under
// shape.
func NewSubscription(shape *Shape) *Subscription {
	return &Subscription{Shape: shape, index: make(map[string]int), backrefs: make(map[int][]backref)}
}

func (s *Subscription) addBackref(childIdx, parentIdx int, pred string) {
	s.backrefs[childIdx] = append(s.backrefs[childIdx], backref{parent: parentIdx, pred: pred})
}

func (s *Subscription) removeBackref(childIdx, parentIdx int, pred string) {
	refs := s.backrefs[childIdx]
	for i, r := range refs {
		if r.parent == parentIdx && r.pred == pred {
			s.backrefs[childIdx] = append(refs[:i], refs[i+1:]...)
			return
		}
	}
}

// subjectAt resolves an arena index to its subject, or nil if the
// index has been tombstoned (removed).
func (s *Subscription) subjectAt(idx int) *TrackedSubject {
	if idx < 0 || idx >= len(s.arena) {
		return nil
	}
	return s.arena[idx]
}

// getOrCreate returns the arena index of iri's TrackedSubject under
// shape, creating a fresh (Unknown-validity, empty) one if absent.
func (s *Subscription) getOrCreate(iri string, shape *Shape) int {
	if idx, ok := s.index[iri]; ok {
		return idx
	}
	sub := &TrackedSubject{Iri: iri, Shape: shape, Slots: make(map[string]*slotValue), Validity: Unknown}
	idx := len(s.arena)
	s.arena = append(s.arena, sub)
	s.index[iri] = idx
	return idx
}

// Get returns the tracked subject for iri, if any.
func (s *Subscription) Get(iri string) (*TrackedSubject, bool) {
	idx, ok := s.index[iri]
	if !ok {
		return nil, false
	}
	return s.arena[idx], true
}

// remove tombstones iri's arena slot; any parent slotValue still
// referencing its index resolves it to nil on next read via
// subjectAt, never panicking, which is what "non-owning indices
// validated on read" buys over raw pointers.
func (s *Subscription) remove(iri string) {
	idx, ok := s.index[iri]
	if !ok {
		return
	}
	s.arena[idx] = nil
	delete(s.index, iri)
}

// recomputeValidity derives sub's validity from its current slot
// cardinalities and its typed children's validity (spec §4.I
// "Valid iff every predicate's cardinality falls inside [min,max]
// and every typed child is Valid"). A typed-child slot only counts
// its currently-Valid children towards the predicate's cardinality:
// an Invalid or still-Unknown child is excluded from the count and
// from the projection rather than forcing the parent itself Invalid,
// which is what lets an Invalid child cascade into a targeted remove
// patch on the parent's slot instead of invalidating the whole parent
// (spec §8 scenario 6; recorded as an Open Question decision in
// DESIGN.md).
func (s *Subscription) recomputeValidity(sub *TrackedSubject) Validity {
	for _, pred := range sub.Shape.Predicates {
		sv := sub.Slots[pred.Predicate]
		n := 0
		if sv != nil {
			if pred.Kind == PredicateTypedChild {
				for _, childIdx := range sv.children {
					if child := s.subjectAt(childIdx); child != nil && child.Validity == Valid {
						n++
					}
				}
			} else {
				n = len(sv.literals)
			}
		}
		if !pred.Cardinality.satisfiedBy(n) {
			return Invalid
		}
	}
	return Valid
}
