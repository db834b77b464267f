package services

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// Engine bundles the relationship engines over one store and registry.
// Construct once after the registry has resolved; safe to share across
// concurrent request handlers.
type Engine struct {
	Applier     *Applier
	Projector   *Projector
	Transferrer *Transferrer
	Reindexer   *Reindexer
}

// NewEngine wires the engines over the given store and repositories.
// A nil logger operates silently.
func NewEngine(db *sql.DB, reg *registry.Registry, records repositories.RecordRepository, instances repositories.InstanceRepository, log *zap.SugaredLogger) *Engine {
	reindexer := NewReindexer(db, reg, records, instances, log)
	return &Engine{
		Applier:     NewApplier(db, reg, records, instances, reindexer, log),
		Projector:   NewProjector(db, reg, instances, log),
		Transferrer: NewTransferrer(db, reg, records, instances, reindexer, log),
		Reindexer:   reindexer,
	}
}
