package orm

import "fmt"

// blankSubjectMarker is the convention a quad stream uses to mark a
// newly created object with no IRI yet (spec §4.I step 3 "Newly
// created objects without an id are skolemized").
const blankSubjectMarker = ""

// skolemizeNewSubjects rewrites every quad whose subject or
// typed-child object is the blank marker to a freshly assigned,
// stable blank-node IRI, returning the rewritten quads plus a
// path-to-IRI assignment map for OrmUpdateBlankNodeIds. Path here is
// the subject's own position: the first occurrence of a blank subject
// assigns it an IRI, and every later quad naming the same blank
// marker within this batch reuses that assignment (so a newly
// inserted object's own properties and inbound child references
// agree on one skolem IRI per call to ApplyQuads).
func (s *Subscription) skolemizeNewSubjects(quads []Quad) ([]Quad, map[string]string) {
	assignments := make(map[string]string)
	batchBlank := "" // the one blank subject this batch may introduce

	out := make([]Quad, len(quads))
	for i, q := range quads {
		if q.Subject == blankSubjectMarker {
			if batchBlank == "" {
				batchBlank = s.nextSkolemIri()
				assignments[fmt.Sprintf("/%s", batchBlank)] = batchBlank
			}
			q.Subject = batchBlank
		}
		if q.IsChild && q.Object == blankSubjectMarker {
			if batchBlank == "" {
				batchBlank = s.nextSkolemIri()
				assignments[fmt.Sprintf("/%s", batchBlank)] = batchBlank
			}
			q.Object = batchBlank
		}
		out[i] = q
	}
	return out, assignments
}

// nextSkolemIri assigns the next stable blank-node IRI for this
// subscription (spec §4.I "the ORM assigns a stable blank-node IRI").
func (s *Subscription) nextSkolemIri() string {
	s.nextBN++
	return fmt.Sprintf("_:b%d", s.nextBN)
}
