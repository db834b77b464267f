package services

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// Transferrer rewrites relationships from victim records onto a target.
// Shared by merge (Assimilate) and by cross-repository transfer.
type Transferrer struct {
	db        *sql.DB
	reg       *registry.Registry
	records   repositories.RecordRepository
	instances repositories.InstanceRepository
	reindexer *Reindexer
	log       *zap.SugaredLogger
}

// NewTransferrer creates a new Transferrer.
func NewTransferrer(db *sql.DB, reg *registry.Registry, records repositories.RecordRepository, instances repositories.InstanceRepository, reindexer *Reindexer, log *zap.SugaredLogger) *Transferrer {
	return &Transferrer{db: db, reg: reg, records: records, instances: instances, reindexer: reindexer, log: log}
}

// Transfer rewrites every instance of def referencing a victim so that it
// references target instead. One transaction; a failed rewrite leaves
// storage unchanged.
func (t *Transferrer) Transfer(ctx context.Context, def *entities.Definition, target entities.Ref, victims []entities.Ref) error {
	if !def.Available {
		return errors.Wrapf(entities.ErrSchemaMismatch,
			"relationship %q is unavailable", def.Name)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := t.transferTx(ctx, tx, def, target, victims); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// transferTx does the column rewrite inside an existing transaction.
//
// The column scan is deterministic: candidate columns are walked in
// participating-type declaration order, each type's resolved column order
// within that. The victim's reference is cleared, then the target's id
// lands in the first column not already holding a different referent. A
// candidate already holding the target's id would leave both sides equal,
// which is a circular relationship; no free candidate means the schema has
// no room to attach the target.
func (t *Transferrer) transferTx(ctx context.Context, tx repositories.DBTX, def *entities.Definition, target entities.Ref, victims []entities.Ref) error {
	targetCols, err := t.reg.Resolver().ReferenceColumnsFor(ctx, def, target.Type)
	if err != nil {
		return err
	}

	for _, victim := range victims {
		if victim == target || !def.Participates(victim.Type) {
			continue
		}
		victimCols, err := t.reg.Resolver().ReferenceColumnsFor(ctx, def, victim.Type)
		if err != nil {
			return err
		}

		for _, victimCol := range victimCols {
			instances, err := t.instances.FindReferencing(ctx, tx, def, victimCol, victim.ID)
			if err != nil {
				return err
			}

			for _, inst := range instances {
				for _, tc := range targetCols {
					if tc == victimCol {
						continue
					}
					if cur, ok := inst.References[tc]; ok && cur == target.ID {
						return errors.Wrapf(entities.ErrCircularRelationship,
							"rewriting %q instance %d from %s to %s",
							def.Name, inst.ID, victim, target)
					}
				}

				set := map[string]*int64{victimCol: nil}
				placed := false
				for _, tc := range targetCols {
					if tc != victimCol {
						if _, occupied := inst.References[tc]; occupied {
							continue
						}
					}
					id := target.ID
					set[tc] = &id
					placed = true
					break
				}
				if !placed {
					return errors.Wrapf(entities.ErrSchemaMismatch,
						"no reference column on %q left to attach %s", def.Name, target)
				}

				if err := t.instances.UpdateReferences(ctx, tx, def, inst.ID, set); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Assimilate merges victims into target: every relationship in which
// target's type participates is transferred, then the victims are deleted.
// All-or-nothing: a victim still referenced afterwards blocks the merge
// and nothing is deleted.
func (t *Transferrer) Assimilate(ctx context.Context, target entities.Ref, victims []entities.Ref) error {
	for _, v := range victims {
		if v == target {
			return errors.Newf("cannot assimilate %s into itself", target)
		}
		if v.Type != target.Type {
			return errors.Newf("cannot assimilate %s into %s: record types differ", v, target)
		}
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	// Victims' dependents need fresh mtimes while their links still exist.
	for _, v := range victims {
		if err := t.reindexer.touchTx(ctx, tx, v); err != nil {
			return err
		}
	}

	for _, def := range t.reg.DefinitionsFor(target.Type) {
		if !def.Available {
			if t.log != nil {
				t.log.Debugw("skipping unavailable relationship during merge",
					"relationship", def.Name, "target", target.String())
			}
			continue
		}
		if err := t.transferTx(ctx, tx, def, target, victims); err != nil {
			return err
		}
	}

	for _, v := range victims {
		if err := t.records.Delete(ctx, tx, v); err != nil {
			return err
		}
	}

	if err := t.reindexer.touchTx(ctx, tx, target); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// TransferToRepository moves rec to another repository. Relationships to
// referents bound to the old repository and not transferring together no
// longer make sense and are deleted; links to globally-scoped referents or
// to co-transferred records are preserved.
func (t *Transferrer) TransferToRepository(ctx context.Context, rec entities.Ref, newRepoID int64, coTransferred []entities.Ref) error {
	tc, err := t.reg.Type(rec.Type)
	if err != nil {
		return err
	}
	if !tc.RepositoryScoped {
		return errors.Newf("record type %q is not repository-scoped", rec.Type)
	}

	co := make(map[entities.Ref]bool, len(coTransferred))
	for _, r := range coTransferred {
		co[r] = true
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	oldRepoID, _, err := t.records.RepoScope(ctx, tx, rec)
	if err != nil {
		return err
	}

	for _, def := range t.reg.DefinitionsFor(rec.Type) {
		if !def.Available {
			continue
		}
		instances, err := t.instances.FindByParticipant(ctx, tx, def, rec)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			other, err := def.OtherReferent(inst, rec)
			if err != nil {
				return err
			}
			otherType, err := t.reg.Type(other.Type)
			if err != nil {
				return err
			}
			if !otherType.RepositoryScoped || co[other] {
				continue
			}
			otherRepoID, _, err := t.records.RepoScope(ctx, tx, other)
			if err != nil {
				return err
			}
			if otherRepoID != oldRepoID || oldRepoID == newRepoID {
				continue
			}

			if err := t.instances.DeleteByID(ctx, tx, def, inst.ID); err != nil {
				return err
			}
			if err := t.records.TouchMtime(ctx, tx, other.Type, []int64{other.ID}); err != nil {
				return err
			}
		}
	}

	if err := t.records.UpdateRepoScope(ctx, tx, rec, newRepoID); err != nil {
		return err
	}
	if err := t.reindexer.touchTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
