package entities

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func linkedAgentsDef() *Definition {
	return &Definition{
		Name:             "linked_agents",
		ExternalProperty: "linked_agents",
		Multiplicity:     Many,
		Properties:       []string{"role"},
		Types:            []string{"event", "agent"},
		Declarers:        []string{"event"},
		Table:            "linked_agents_rlshp",
		Available:        true,
		ReferenceColumns: []ReferenceColumn{
			{Name: "event_id", Type: "event"},
			{Name: "agent_id", Type: "agent"},
		},
	}
}

func relatedResourcesDef() *Definition {
	return &Definition{
		Name:             "related_resources",
		ExternalProperty: "related_resources",
		Multiplicity:     Many,
		Properties:       []string{"relator"},
		Types:            []string{"resource", "resource"},
		Declarers:        []string{"resource"},
		Table:            "related_resources_rlshp",
		Available:        true,
		ReferenceColumns: []ReferenceColumn{
			{Name: "resource_id_0", Type: "resource"},
			{Name: "resource_id_1", Type: "resource"},
		},
	}
}

func TestDefinition_Participates(t *testing.T) {
	def := linkedAgentsDef()

	tests := []struct {
		name       string
		recordType string
		want       bool
	}{
		{name: "first participating type", recordType: "event", want: true},
		{name: "second participating type", recordType: "agent", want: true},
		{name: "non-participant", recordType: "resource", want: false},
		{name: "empty type", recordType: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := def.Participates(tt.recordType); got != tt.want {
				t.Errorf("Definition.Participates(%q) = %v, want %v", tt.recordType, got, tt.want)
			}
		})
	}
}

func TestDefinition_Reciprocal(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
		want bool
	}{
		{name: "single declarer, distinct types", def: linkedAgentsDef(), want: false},
		{
			name: "two declarers",
			def: &Definition{
				Name:      "subject_link",
				Types:     []string{"resource", "accession", "subject"},
				Declarers: []string{"resource", "accession"},
			},
			want: true,
		},
		// The lone declarer sits on both sides, so the other side is
		// still writable.
		{name: "same-typed, single declarer", def: relatedResourcesDef(), want: true},
		{
			name: "same-typed but never declared",
			def:  &Definition{Name: "related_resources", Types: []string{"resource", "resource"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.Reciprocal(); got != tt.want {
				t.Errorf("Definition.Reciprocal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefinition_WritableFor(t *testing.T) {
	tests := []struct {
		name             string
		externalProperty string
		declarers        []string
		recordType       string
		want             bool
	}{
		{
			name:             "declarer with external property",
			externalProperty: "linked_agents",
			declarers:        []string{"event"},
			recordType:       "event",
			want:             true,
		},
		{
			name:             "participant that did not declare",
			externalProperty: "linked_agents",
			declarers:        []string{"event"},
			recordType:       "agent",
			want:             false,
		},
		{
			name:             "derived relationship is never writable",
			externalProperty: "",
			declarers:        []string{"event"},
			recordType:       "event",
			want:             false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &Definition{
				Name:             "linked_agents",
				ExternalProperty: tt.externalProperty,
				Declarers:        tt.declarers,
			}
			if got := def.WritableFor(tt.recordType); got != tt.want {
				t.Errorf("Definition.WritableFor(%q) = %v, want %v", tt.recordType, got, tt.want)
			}
		})
	}
}

func TestDefinition_SameTyped(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{name: "distinct types", types: []string{"event", "agent"}, want: false},
		{name: "repeated type", types: []string{"resource", "resource"}, want: true},
		{name: "repeated type among three", types: []string{"resource", "subject", "resource"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &Definition{Types: tt.types}
			if got := def.SameTyped(); got != tt.want {
				t.Errorf("Definition.SameTyped() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefinition_ColumnsFor(t *testing.T) {
	t.Run("distinct types yield one column each", func(t *testing.T) {
		def := linkedAgentsDef()

		cols, err := def.ColumnsFor("agent")
		if err != nil {
			t.Fatalf("ColumnsFor() error = %v", err)
		}
		if len(cols) != 1 || cols[0] != "agent_id" {
			t.Errorf("ColumnsFor(agent) = %v, want [agent_id]", cols)
		}
	})

	t.Run("repeated type yields both columns in order", func(t *testing.T) {
		def := relatedResourcesDef()

		cols, err := def.ColumnsFor("resource")
		if err != nil {
			t.Fatalf("ColumnsFor() error = %v", err)
		}
		if len(cols) != 2 || cols[0] != "resource_id_0" || cols[1] != "resource_id_1" {
			t.Errorf("ColumnsFor(resource) = %v, want [resource_id_0 resource_id_1]", cols)
		}
	})

	t.Run("non-participant is a schema mismatch", func(t *testing.T) {
		def := linkedAgentsDef()

		_, err := def.ColumnsFor("resource")
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Errorf("ColumnsFor(resource) error = %v, want ErrSchemaMismatch", err)
		}
	})

	t.Run("participant without a resolved column is a schema mismatch", func(t *testing.T) {
		def := linkedAgentsDef()
		def.ReferenceColumns = def.ReferenceColumns[:1] // drop agent_id

		_, err := def.ColumnsFor("agent")
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Errorf("ColumnsFor(agent) error = %v, want ErrSchemaMismatch", err)
		}
	})
}

func TestDefinition_OtherReferent(t *testing.T) {
	t.Run("distinct types", func(t *testing.T) {
		def := linkedAgentsDef()
		inst := &RelationshipInstance{
			ID:         1,
			References: map[string]int64{"event_id": 10, "agent_id": 20},
		}

		other, err := def.OtherReferent(inst, Ref{Type: "event", ID: 10})
		if err != nil {
			t.Fatalf("OtherReferent() error = %v", err)
		}
		if (other != Ref{Type: "agent", ID: 20}) {
			t.Errorf("OtherReferent() = %v, want agent:20", other)
		}
	})

	t.Run("same type, record in first column", func(t *testing.T) {
		def := relatedResourcesDef()
		inst := &RelationshipInstance{
			ID:         2,
			References: map[string]int64{"resource_id_0": 1, "resource_id_1": 2},
		}

		other, err := def.OtherReferent(inst, Ref{Type: "resource", ID: 1})
		if err != nil {
			t.Fatalf("OtherReferent() error = %v", err)
		}
		if (other != Ref{Type: "resource", ID: 2}) {
			t.Errorf("OtherReferent() = %v, want resource:2", other)
		}
	})

	t.Run("same type, record in second column", func(t *testing.T) {
		def := relatedResourcesDef()
		inst := &RelationshipInstance{
			ID:         3,
			References: map[string]int64{"resource_id_0": 1, "resource_id_1": 2},
		}

		other, err := def.OtherReferent(inst, Ref{Type: "resource", ID: 2})
		if err != nil {
			t.Fatalf("OtherReferent() error = %v", err)
		}
		if (other != Ref{Type: "resource", ID: 1}) {
			t.Errorf("OtherReferent() = %v, want resource:1", other)
		}
	})

	t.Run("instance without another referent is malformed", func(t *testing.T) {
		def := relatedResourcesDef()
		inst := &RelationshipInstance{
			ID:         4,
			References: map[string]int64{"resource_id_0": 7},
		}

		_, err := def.OtherReferent(inst, Ref{Type: "resource", ID: 7})
		if err == nil {
			t.Error("OtherReferent() error = nil, want assertion failure")
		}
	})
}
