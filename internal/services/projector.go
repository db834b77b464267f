package services

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// ProjectedEntry is one projected link: the stored properties plus "ref",
// the resolved reference to the other participant.
type ProjectedEntry map[string]any

// Projector emits a record's relationships under their external property
// names for the serialization layer.
type Projector struct {
	db        *sql.DB
	reg       *registry.Registry
	instances repositories.InstanceRepository
	log       *zap.SugaredLogger
}

// NewProjector creates a new Projector.
func NewProjector(db *sql.DB, reg *registry.Registry, instances repositories.InstanceRepository, log *zap.SugaredLogger) *Projector {
	return &Projector{db: db, reg: reg, instances: instances, log: log}
}

// projectable reports whether def is emitted for recordType: any
// relationship with an external property, writable from this side or not.
func projectable(def *entities.Definition, recordType string) bool {
	return def.Available && def.ExternalProperty != "" && def.Participates(recordType)
}

// Project reads and projects every relationship of rec. Lists preserve
// position order; a One relationship collapses to a single value.
func (p *Projector) Project(ctx context.Context, rec entities.Ref) (map[string]any, error) {
	out := make(map[string]any)
	for _, def := range p.reg.DefinitionsFor(rec.Type) {
		if !projectable(def, rec.Type) {
			continue
		}
		instances, err := p.instances.FindByParticipant(ctx, p.db, def, rec)
		if err != nil {
			return nil, err
		}
		if err := p.projectInto(out, def, rec, instances); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProjectWith projects rec from a precomputed instance set (keyed by
// relationship name, from a bulk read) without touching storage.
func (p *Projector) ProjectWith(rec entities.Ref, byRelationship map[string][]*entities.RelationshipInstance) (map[string]any, error) {
	out := make(map[string]any)
	for _, def := range p.reg.DefinitionsFor(rec.Type) {
		if !projectable(def, rec.Type) {
			continue
		}
		if err := p.projectInto(out, def, rec, byRelationship[def.Name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProjectMany projects several records with one bulk read per
// relationship instead of one read per record.
func (p *Projector) ProjectMany(ctx context.Context, recs []entities.Ref) (map[entities.Ref]map[string]any, error) {
	out := make(map[entities.Ref]map[string]any, len(recs))
	byRecord := make(map[entities.Ref]map[string][]*entities.RelationshipInstance, len(recs))
	for _, rec := range recs {
		byRecord[rec] = make(map[string][]*entities.RelationshipInstance)
	}

	for _, def := range p.reg.Definitions() {
		if !def.Available || def.ExternalProperty == "" {
			continue
		}
		var subset []entities.Ref
		for _, rec := range recs {
			if def.Participates(rec.Type) {
				subset = append(subset, rec)
			}
		}
		if len(subset) == 0 {
			continue
		}
		grouped, err := p.instances.FindByParticipants(ctx, p.db, def, subset)
		if err != nil {
			return nil, err
		}
		for rec, instances := range grouped {
			byRecord[rec][def.Name] = instances
		}
	}

	for _, rec := range recs {
		projected, err := p.ProjectWith(rec, byRecord[rec])
		if err != nil {
			return nil, err
		}
		out[rec] = projected
	}
	return out, nil
}

// ValuesForProperty returns the distinct values of one property across
// every instance touching rec, in any relationship declaring it.
func (p *Projector) ValuesForProperty(ctx context.Context, rec entities.Ref, property string) ([]any, error) {
	var values []any
	seen := make(map[any]bool)
	for _, def := range p.reg.DefinitionsFor(rec.Type) {
		if !def.Available || !hasProperty(def, property) {
			continue
		}
		vals, err := p.instances.ValuesForProperty(ctx, p.db, def, rec, property)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if !seen[v] {
				seen[v] = true
				values = append(values, v)
			}
		}
	}
	return values, nil
}

func (p *Projector) projectInto(out map[string]any, def *entities.Definition, rec entities.Ref, instances []*entities.RelationshipInstance) error {
	entries := make([]ProjectedEntry, 0, len(instances))
	for _, inst := range instances {
		other, err := def.OtherReferent(inst, rec)
		if err != nil {
			return err
		}
		entry := make(ProjectedEntry, len(inst.Properties)+1)
		for k, v := range inst.Properties {
			entry[k] = v
		}
		entry["ref"] = other
		entries = append(entries, entry)
	}

	if def.Multiplicity == entities.One {
		if len(entries) > 0 {
			out[def.ExternalProperty] = entries[0]
		}
		return nil
	}
	out[def.ExternalProperty] = entries
	return nil
}

func hasProperty(def *entities.Definition, name string) bool {
	for _, p := range def.Properties {
		if p == name {
			return true
		}
	}
	return false
}
