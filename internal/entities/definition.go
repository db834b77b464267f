package entities

import (
	"github.com/cockroachdb/errors"
)

// Multiplicity controls how a relationship projects externally:
// One collapses to a single value, Many stays an ordered list.
type Multiplicity int

const (
	One Multiplicity = iota + 1
	Many
)

// Config declares a relationship before type resolution.
// Types is evaluated lazily so relationships may reference record types
// that are registered later; registration order is not guaranteed.
type Config struct {
	Name             string
	Types            func() []string
	ExternalProperty string // empty marks a derived relationship (never written from external input)
	Multiplicity     Multiplicity
	Properties       []string // property column names, declaration order
}

// ReferenceColumn is a storage column capable of holding the id of a
// referent of a specific record type.
type ReferenceColumn struct {
	Name string
	Type string
}

// Definition is a resolved relationship declaration.
// Populated by the registry during Resolve and immutable afterwards.
type Definition struct {
	Name             string
	ExternalProperty string
	Multiplicity     Multiplicity
	Properties       []string

	// Types are the participating record types in declaration order.
	// A type may appear twice for self-referencing relationships.
	Types []string

	// Declarers are the record types that declared this relationship.
	// The relationship is writable from every declarer.
	Declarers []string

	// Table is the relationship's storage table.
	Table string

	// Available is false when the storage table is missing; the
	// relationship is then skipped by apply and projection.
	Available bool

	// ReferenceColumns are the resolved reference columns, one per
	// participating type occurrence, in declaration order.
	ReferenceColumns []ReferenceColumn
}

// Participates reports whether recordType is one of the participating types.
func (d *Definition) Participates(recordType string) bool {
	for _, t := range d.Types {
		if t == recordType {
			return true
		}
	}
	return false
}

// DeclaredBy reports whether recordType declared this relationship.
func (d *Definition) DeclaredBy(recordType string) bool {
	for _, t := range d.Declarers {
		if t == recordType {
			return true
		}
	}
	return false
}

// Reciprocal reports whether the relationship is writable from more than
// one participating side: either several types declared it, or it is
// same-typed, where the lone declarer sits on both sides. Reciprocal
// writes bump the other referent's concurrency version so a concurrent
// edit cannot silently lose the link.
func (d *Definition) Reciprocal() bool {
	if len(d.Declarers) == 0 {
		return false
	}
	return len(d.Declarers) > 1 || d.SameTyped()
}

// WritableFor reports whether recordType may rewrite this relationship's
// instance set from an incoming description.
func (d *Definition) WritableFor(recordType string) bool {
	return d.ExternalProperty != "" && d.DeclaredBy(recordType)
}

// SameTyped reports whether both participating sides are the same record
// type, requiring the two-column storage form.
func (d *Definition) SameTyped() bool {
	seen := make(map[string]bool, len(d.Types))
	for _, t := range d.Types {
		if seen[t] {
			return true
		}
		seen[t] = true
	}
	return false
}

// ColumnsFor returns the ordered reference columns that may hold a
// referent of recordType. Every matching column is returned, not just the
// first: a self-referencing relationship has two.
func (d *Definition) ColumnsFor(recordType string) ([]string, error) {
	if !d.Participates(recordType) {
		return nil, errors.Wrapf(ErrSchemaMismatch,
			"type %q does not participate in relationship %q", recordType, d.Name)
	}
	var cols []string
	for _, rc := range d.ReferenceColumns {
		if rc.Type == recordType {
			cols = append(cols, rc.Name)
		}
	}
	if len(cols) == 0 {
		return nil, errors.Wrapf(ErrSchemaMismatch,
			"relationship %q has no reference column for type %q", d.Name, recordType)
	}
	return cols, nil
}

// OtherReferent resolves the participant on the other side of an instance
// from rec. Columns are scanned in participating-type declaration order;
// the first non-null reference that is not rec itself wins. An instance
// with no other referent is malformed and reported as an internal error.
func (d *Definition) OtherReferent(inst *RelationshipInstance, rec Ref) (Ref, error) {
	for _, rc := range d.ReferenceColumns {
		id, ok := inst.References[rc.Name]
		if !ok {
			continue
		}
		if rc.Type == rec.Type && id == rec.ID {
			continue
		}
		return Ref{Type: rc.Type, ID: id}, nil
	}
	return Ref{}, errors.AssertionFailedf(
		"relationship %q instance %d has no referent other than %s",
		d.Name, inst.ID, rec)
}
