// Package models declares the canonical archival record types and their
// relationships. Declarations are phase 1 only: the registry's Resolve
// evaluates the participating-type thunks once every type is known.
package models

import (
	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
)

// Record type names.
const (
	TypeRepository = "repository"
	TypeAgent      = "agent"
	TypeSubject    = "subject"
	TypeEvent      = "event"
	TypeResource   = "resource"
	TypeAccession  = "accession"
)

// Relationship names.
const (
	RelLinkedAgents     = "linked_agents"
	RelEventLink        = "event_link"
	RelRelatedResources = "related_resources"
	RelSubjectLink      = "subject_link"
	RelClassification   = "classification"
)

// Register declares the full catalog on a fresh registry.
func Register(reg *registry.Registry) error {
	types := []registry.TypeConfig{
		{Name: TypeRepository},
		{Name: TypeAgent},
		{Name: TypeSubject, RepositoryScoped: true},
		{Name: TypeEvent, RepositoryScoped: true},
		{Name: TypeResource, RepositoryScoped: true},
		{Name: TypeAccession, RepositoryScoped: true},
	}
	for _, tc := range types {
		if err := reg.RegisterType(tc); err != nil {
			return err
		}
	}

	// Agents linked to events, with a role per link. One-sided: only the
	// event rewrites the set; agents see it as derived data.
	if err := reg.Declare(TypeEvent, entities.Config{
		Name:             RelLinkedAgents,
		Types:            func() []string { return []string{TypeEvent, TypeAgent} },
		ExternalProperty: "linked_agents",
		Multiplicity:     entities.Many,
		Properties:       []string{"role"},
	}); err != nil {
		return err
	}

	// Events attached to the records they document.
	if err := reg.Declare(TypeEvent, entities.Config{
		Name:             RelEventLink,
		Types:            func() []string { return []string{TypeEvent, TypeResource, TypeAccession} },
		ExternalProperty: "linked_records",
		Multiplicity:     entities.Many,
		Properties:       []string{"role"},
	}); err != nil {
		return err
	}

	// Resource-to-resource links: same type on both sides, so storage
	// carries two resource columns.
	if err := reg.Declare(TypeResource, entities.Config{
		Name:             RelRelatedResources,
		Types:            func() []string { return []string{TypeResource, TypeResource} },
		ExternalProperty: "related_resources",
		Multiplicity:     entities.Many,
		Properties:       []string{"relator"},
	}); err != nil {
		return err
	}

	// Subject links are writable from both owning sides.
	subjectLink := entities.Config{
		Name:             RelSubjectLink,
		Types:            func() []string { return []string{TypeResource, TypeAccession, TypeSubject} },
		ExternalProperty: "subjects",
		Multiplicity:     entities.Many,
	}
	if err := reg.Declare(TypeResource, subjectLink); err != nil {
		return err
	}
	if err := reg.Declare(TypeAccession, subjectLink); err != nil {
		return err
	}

	// A resource has at most one classifying subject.
	if err := reg.Declare(TypeResource, entities.Config{
		Name:             RelClassification,
		Types:            func() []string { return []string{TypeResource, TypeSubject} },
		ExternalProperty: "classification",
		Multiplicity:     entities.One,
		Properties:       []string{"note"},
	}); err != nil {
		return err
	}

	return nil
}
