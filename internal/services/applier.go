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

// InstanceInput is one entry of an incoming relationship description: the
// referenced record plus the link's own properties.
type InstanceInput struct {
	Ref        entities.Ref
	Properties map[string]any
}

// ApplyOptions controls one Apply call.
type ApplyOptions struct {
	// SystemGenerated suppresses the reciprocal concurrency bump for
	// changes not originating from a user edit.
	SystemGenerated bool

	// Retain preserves a relationship's existing instance set instead of
	// rebuilding it. The incoming description is ignored for retained
	// relationships.
	Retain func(*entities.Definition) bool
}

// Applier rebuilds a record's relationship set from an incoming
// description. The whole apply is one transaction: partial application is
// never visible.
type Applier struct {
	db        *sql.DB
	reg       *registry.Registry
	records   repositories.RecordRepository
	instances repositories.InstanceRepository
	reindexer *Reindexer
	log       *zap.SugaredLogger
}

// NewApplier creates a new Applier.
func NewApplier(db *sql.DB, reg *registry.Registry, records repositories.RecordRepository, instances repositories.InstanceRepository, reindexer *Reindexer, log *zap.SugaredLogger) *Applier {
	return &Applier{db: db, reg: reg, records: records, instances: instances, reindexer: reindexer, log: log}
}

// Apply replaces rec's relationship set with desc, a mapping of external
// property name to ordered entries. Entry order defines position: input
// index i becomes position i and round-trips through projection exactly.
func (a *Applier) Apply(ctx context.Context, rec entities.Ref, desc map[string][]InstanceInput, opts ApplyOptions, isNew bool) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := a.applyTx(ctx, tx, rec, desc, opts, isNew); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (a *Applier) applyTx(ctx context.Context, tx repositories.DBTX, rec entities.Ref, desc map[string][]InstanceInput, opts ApplyOptions, isNew bool) error {
	// Dependents of links about to be removed need a fresh mtime too, so
	// touch before the rewrite as well as after.
	if !isNew {
		if err := a.reindexer.touchTx(ctx, tx, rec); err != nil {
			return err
		}
	}

	for _, def := range a.reg.WritableFor(rec.Type) {
		if !def.Available {
			if a.log != nil {
				a.log.Debugw("skipping unavailable relationship",
					"relationship", def.Name, "record", rec.String())
			}
			continue
		}
		if opts.Retain != nil && opts.Retain(def) {
			continue
		}

		if !isNew {
			if _, err := a.instances.DeleteForParticipant(ctx, tx, def, rec); err != nil {
				return err
			}
		}

		list := desc[def.ExternalProperty]
		if def.Multiplicity == entities.One && len(list) > 1 {
			return errors.Newf("relationship %q accepts a single entry, got %d",
				def.Name, len(list))
		}

		for i, in := range list {
			if in.Ref.IsZero() {
				return errors.Newf("relationship %q entry %d is missing a record reference",
					def.Name, i)
			}
			if !def.Participates(in.Ref.Type) {
				return errors.Wrapf(entities.ErrInvalidReference,
					"relationship %q entry %d references a %s", def.Name, i, in.Ref.Type)
			}

			exists, err := a.records.Exists(ctx, tx, in.Ref)
			if err != nil {
				return err
			}
			if !exists {
				return errors.Wrapf(entities.ErrDanglingReference,
					"relationship %q entry %d references %s", def.Name, i, in.Ref)
			}

			if _, err := a.instances.Create(ctx, tx, def, rec, in.Ref, in.Properties, i); err != nil {
				return err
			}

			// A reciprocal link changes what the other side projects, so a
			// concurrent edit over there must not win silently.
			if def.Reciprocal() && !opts.SystemGenerated {
				if err := a.records.BumpVersion(ctx, tx, in.Ref); err != nil {
					return err
				}
			}
		}
	}

	return a.reindexer.touchTx(ctx, tx, rec)
}
