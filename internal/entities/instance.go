package entities

import (
	"time"

	"github.com/cockroachdb/errors"
)

// RelationshipInstance is one stored link between exactly two records.
// References maps reference column name to referent id and only carries
// the non-null columns; there are always exactly two.
type RelationshipInstance struct {
	ID           int64
	Relationship string
	References   map[string]int64
	Properties   map[string]any
	Position     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Referent returns the id stored in the given reference column.
func (ri *RelationshipInstance) Referent(column string) (int64, bool) {
	id, ok := ri.References[column]
	return id, ok
}

// Validate checks the instance invariants against its definition:
// exactly two reference columns are set, and a same-type pair never links
// a record to itself.
func (ri *RelationshipInstance) Validate(def *Definition) error {
	if len(ri.References) != 2 {
		return errors.Wrapf(ErrSchemaMismatch,
			"relationship %q instance must connect exactly two referents, has %d",
			def.Name, len(ri.References))
	}
	var refs []Ref
	for _, rc := range def.ReferenceColumns {
		if id, ok := ri.References[rc.Name]; ok {
			refs = append(refs, Ref{Type: rc.Type, ID: id})
		}
	}
	if len(refs) == 2 && refs[0] == refs[1] {
		return errors.Wrapf(ErrSelfReference,
			"relationship %q instance links %s to itself", def.Name, refs[0])
	}
	return nil
}
