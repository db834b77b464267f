package services

import (
	"context"
	"database/sql"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// Reindexer touches the modification marker of every record dependent on
// a changed record, driving downstream re-derivation (search reindexing
// and the like) outside this engine.
type Reindexer struct {
	db        *sql.DB
	reg       *registry.Registry
	records   repositories.RecordRepository
	instances repositories.InstanceRepository
	log       *zap.SugaredLogger
}

// NewReindexer creates a new Reindexer.
func NewReindexer(db *sql.DB, reg *registry.Registry, records repositories.RecordRepository, instances repositories.InstanceRepository, log *zap.SugaredLogger) *Reindexer {
	return &Reindexer{db: db, reg: reg, records: records, instances: instances, log: log}
}

// TouchDependents updates the system mtime of every record of a dependent
// type connected to rec through any matching reference column. The record
// lifecycle invokes this both before and after a relationship-set rewrite:
// links may be removed and re-added and dependents on either side need a
// fresh timestamp.
func (r *Reindexer) TouchDependents(ctx context.Context, rec entities.Ref) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := r.touchTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// touchTx is the in-transaction form shared with the other engines.
//
// The two sides are genuinely asymmetric: instances are found through the
// columns matching the changed record's type, while the touched side is
// whatever OtherReferent resolves for each row. The column lists are never
// shared between the sides.
func (r *Reindexer) touchTx(ctx context.Context, db repositories.DBTX, rec entities.Ref) error {
	dependents := r.reg.DependentsOf(rec.Type)
	if len(dependents) == 0 {
		return nil
	}
	depSet := make(map[string]bool, len(dependents))
	for _, t := range dependents {
		depSet[t] = true
	}

	for _, def := range r.reg.DefinitionsFor(rec.Type) {
		if !def.Available {
			continue
		}
		instances, err := r.instances.FindByParticipant(ctx, db, def, rec)
		if err != nil {
			return err
		}

		idsByType := make(map[string][]int64)
		seen := make(map[entities.Ref]bool)
		for _, inst := range instances {
			other, err := def.OtherReferent(inst, rec)
			if err != nil {
				return err
			}
			if !depSet[other.Type] || seen[other] {
				continue
			}
			seen[other] = true
			idsByType[other.Type] = append(idsByType[other.Type], other.ID)
		}

		types := make([]string, 0, len(idsByType))
		for t := range idsByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			if err := r.records.TouchMtime(ctx, db, t, idsByType[t]); err != nil {
				return err
			}
		}
	}
	return nil
}
