package orm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func personShape() *Shape {
	shape := &Shape{Name: "Person"}
	shape.Predicates = []PredicateSchema{
		{Predicate: "name", Kind: PredicateLiteral, Cardinality: Cardinality{Min: 1, Max: 1}},
		{Predicate: "knows", Kind: PredicateTypedChild, Cardinality: Cardinality{Min: 0, Max: -1}, ChildShape: shape},
	}
	return shape
}

// TestOrmProjectionScenario follows spec §8 scenario 6: inserting
// (:a name "Alice"), (:a knows :b), (:b name "Bob") makes :a Valid
// with a nested projection of :b; removing (:b name "Bob") then
// invalidates :b and emits a remove patch for the nested object.
func TestOrmProjectionScenario(t *testing.T) {
	shape := personShape()
	sub := NewSubscription(shape)

	diff := sub.ApplyQuads([]Quad{
		{Op: QuadInsert, Subject: "a", Predicate: "name", Object: "Alice"},
		{Op: QuadInsert, Subject: "a", Predicate: "knows", Object: "b", IsChild: true},
		{Op: QuadInsert, Subject: "b", Predicate: "name", Object: "Bob"},
	})

	aSub, ok := sub.Get("a")
	require.True(t, ok)
	require.Equal(t, Valid, aSub.Validity)

	var addPatchForA *OrmPatch
	for i := range diff.Patches {
		if diff.Patches[i].Path == "/a" && diff.Patches[i].Op == PatchAdd {
			addPatchForA = &diff.Patches[i]
		}
	}
	require.NotNil(t, addPatchForA)
	obj := addPatchForA.Value.(map[string]interface{})
	require.Equal(t, []string{"Alice"}, obj["name"])
	knows := obj["knows"].([]map[string]interface{})
	require.Len(t, knows, 1)
	require.Equal(t, "b", knows[0]["iri"])
	require.Equal(t, []string{"Bob"}, knows[0]["name"])

	// Removing (:b name "Bob") drops :b below its min cardinality of
	// 1, invalidating it. :a stays Valid (knows has min=0) but its
	// knows slot no longer counts the now-Invalid :b, so the cascade
	// emits a targeted remove patch for the nested object under
	// /a/knows rather than invalidating :a wholesale.
	diff2 := sub.ApplyQuads([]Quad{
		{Op: QuadRemove, Subject: "b", Predicate: "name", Object: "Bob"},
	})
	bSub, _ := sub.Get("b")
	require.Equal(t, Invalid, bSub.Validity)
	aSub, _ = sub.Get("a")
	require.Equal(t, Valid, aSub.Validity)

	var removePatch *OrmPatch
	for i := range diff2.Patches {
		if diff2.Patches[i].Op == PatchRemove && diff2.Patches[i].Path == "/a/knows" {
			removePatch = &diff2.Patches[i]
		}
	}
	require.NotNil(t, removePatch)
	require.Equal(t, ValObject, removePatch.ValType)
}

func TestOrmValidityLaw(t *testing.T) {
	shape := personShape()
	sub := NewSubscription(shape)
	sub.ApplyQuads([]Quad{{Op: QuadInsert, Subject: "a", Predicate: "name", Object: "Alice"}})
	a, _ := sub.Get("a")
	require.Equal(t, Valid, a.Validity)

	sub.ApplyQuads([]Quad{{Op: QuadInsert, Subject: "a", Predicate: "name", Object: "Alicia"}})
	a, _ = sub.Get("a")
	require.Equal(t, Invalid, a.Validity, "name has max=1, two values must violate cardinality")
}

func TestSkolemAssignsStableBlankNodeIds(t *testing.T) {
	shape := personShape()
	sub := NewSubscription(shape)
	diff := sub.ApplyQuads([]Quad{
		{Op: QuadInsert, Subject: blankSubjectMarker, Predicate: "name", Object: "Anon"},
	})
	require.NotNil(t, diff.BlankNodeIds)
	require.Len(t, diff.BlankNodeIds.Assignments, 1)
}

func TestReversePatchFlipsOp(t *testing.T) {
	p := OrmPatch{Op: PatchAdd, ValType: ValSet, Path: "/a/name", Value: "Alice"}
	rev := ReversePatch(p)
	require.Equal(t, PatchRemove, rev.Op)
	require.Equal(t, p.Path, rev.Path)
	require.Equal(t, p.Value, rev.Value)
}
