// Package orm implements the live, typed RDF graph projection of
// spec §4.I: a Subscription tracks a set of subjects under a Shape,
// computing validity and minimal patches as quads are inserted and
// removed.
package orm

// Cardinality bounds how many times a predicate may occur on a
// subject for that subject to be Valid (spec §8 "ORM validity:
// min_card ≤ cardinality ≤ (max_card = -1 ? ∞ : max_card)").
type Cardinality struct {
	Min int
	Max int // -1 means unbounded
}

func (c Cardinality) satisfiedBy(n int) bool {
	if n < c.Min {
		return false
	}
	if c.Max >= 0 && n > c.Max {
		return false
	}
	return true
}

// PredicateKind distinguishes a literal-valued slot from one whose
// object is itself a tracked subject under a child Shape.
type PredicateKind int

const (
	PredicateLiteral PredicateKind = iota
	PredicateTypedChild
)

// PredicateSchema describes one predicate slot of a Shape.
type PredicateSchema struct {
	Predicate   string
	Kind        PredicateKind
	Cardinality Cardinality
	ChildShape  *Shape // set iff Kind == PredicateTypedChild
}

// Shape is a named set of predicate slots a subject is tracked under
// (spec §4.I "each subject linking tracked_predicates (schema-
// prescribed slots)").
type Shape struct {
	Name       string
	Predicates []PredicateSchema
	// Open, when set, makes predicate() synthesize an unbounded literal
	// slot for any predicate not already listed, instead of rejecting
	// it. The app declares no Shape over the wire before it starts
	// sending frontend patches (spec §4.D only has app_process_request
	// carry an opaque payload), so a session's Subscription has nothing
	// to validate a patch's predicate against but this permissive
	// fallback.
	Open bool
}

func (s *Shape) predicate(pred string) (PredicateSchema, bool) {
	for _, p := range s.Predicates {
		if p.Predicate == pred {
			return p, true
		}
	}
	if s.Open {
		return PredicateSchema{Predicate: pred, Kind: PredicateLiteral, Cardinality: Cardinality{Min: 0, Max: -1}}, true
	}
	return PredicateSchema{}, false
}

// GenericShape is the permissive Shape app sessions track frontend
// patches under until a real schema negotiation exists.
var GenericShape = &Shape{Name: "Generic", Open: true}
