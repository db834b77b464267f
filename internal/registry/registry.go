package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/pkg/cache"
)

// TypeConfig registers a record type with the registry.
type TypeConfig struct {
	Name             string
	Table            string // storage table, defaults to Name
	RepositoryScoped bool   // record lives inside an isolation domain
}

// declaration is a phase-1 relationship declaration by one record type.
type declaration struct {
	declarer string
	cfg      entities.Config
}

// Registry holds record types and relationship definitions.
//
// It is two-phase: RegisterType and Declare collect declarations with lazy
// participating-type thunks (registration order is not guaranteed, so a
// relationship may reference types registered later). Resolve evaluates
// every thunk, resolves reference columns against storage, and freezes the
// registry. After Resolve the registry is read-only and safe to share
// across concurrent request handlers.
type Registry struct {
	mu       sync.RWMutex
	log      *zap.SugaredLogger
	types    map[string]TypeConfig
	decls    []declaration
	defs     map[string]*entities.Definition
	deps     map[string]map[string]bool // participating type -> declaring types
	resolver *Resolver
	resolved bool
}

// New creates an empty registry. A nil logger operates silently.
func New(log *zap.SugaredLogger, columnCache cache.Cache) *Registry {
	return &Registry{
		log:      log,
		types:    make(map[string]TypeConfig),
		defs:     make(map[string]*entities.Definition),
		deps:     make(map[string]map[string]bool),
		resolver: NewResolver(columnCache),
	}
}

// Resolver returns the reference resolver for this registry.
func (r *Registry) Resolver() *Resolver {
	return r.resolver
}

// RegisterType registers a record type. Phase 1 only.
func (r *Registry) RegisterType(tc TypeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return errors.New("registry is resolved and read-only")
	}
	if tc.Name == "" {
		return errors.New("record type name is required")
	}
	if _, exists := r.types[tc.Name]; exists {
		return errors.Newf("record type %q is already registered", tc.Name)
	}
	if tc.Table == "" {
		tc.Table = tc.Name
	}
	r.types[tc.Name] = tc
	return nil
}

// Type returns the configuration of a registered record type.
func (r *Registry) Type(name string) (TypeConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tc, ok := r.types[name]
	if !ok {
		return TypeConfig{}, errors.Newf("record type %q is not registered", name)
	}
	return tc, nil
}

// Declare records a relationship declaration by one record type. The same
// relationship may be declared by several types; it is then writable from
// each of them. Re-declaring clears the declarer's prior declaration of
// that relationship only, never another type's.
func (r *Registry) Declare(declarer string, cfg entities.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return errors.New("registry is resolved and read-only")
	}
	if declarer == "" {
		return errors.New("declaring record type is required")
	}
	if cfg.Name == "" {
		return errors.New("relationship name is required")
	}
	if cfg.Types == nil {
		return errors.Newf("relationship %q requires a participating-types thunk", cfg.Name)
	}
	if cfg.Multiplicity != entities.One && cfg.Multiplicity != entities.Many {
		return errors.Newf("relationship %q requires a multiplicity", cfg.Name)
	}

	kept := r.decls[:0]
	for _, d := range r.decls {
		if d.declarer == declarer && d.cfg.Name == cfg.Name {
			continue
		}
		kept = append(kept, d)
	}
	r.decls = append(kept, declaration{declarer: declarer, cfg: cfg})
	return nil
}

// ClearDeclarations removes every declaration made by one record type.
// Supports test isolation; other types' declarations are untouched.
func (r *Registry) ClearDeclarations(declarer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return
	}
	kept := r.decls[:0]
	for _, d := range r.decls {
		if d.declarer != declarer {
			kept = append(kept, d)
		}
	}
	r.decls = kept
}

// Resolve runs phase 2: evaluates participating-type thunks, checks every
// type is registered, resolves reference columns against the storage
// tables, and freezes the registry. A missing relationship table is a
// logged warning and marks the definition unavailable (degraded mode); a
// present table missing a declared type's reference columns is fatal.
func (r *Registry) Resolve(ctx context.Context, db *sql.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return errors.New("registry is already resolved")
	}

	// Group declarations by relationship name, preserving declaration order.
	var names []string
	grouped := make(map[string][]declaration)
	for _, d := range r.decls {
		if _, seen := grouped[d.cfg.Name]; !seen {
			names = append(names, d.cfg.Name)
		}
		grouped[d.cfg.Name] = append(grouped[d.cfg.Name], d)
	}

	for _, name := range names {
		decls := grouped[name]
		first := decls[0].cfg

		var declarers []string
		for _, d := range decls {
			if d.cfg.ExternalProperty != first.ExternalProperty ||
				d.cfg.Multiplicity != first.Multiplicity {
				return errors.Newf(
					"relationship %q declared with conflicting configurations by %q and %q",
					name, decls[0].declarer, d.declarer)
			}
			declarers = append(declarers, d.declarer)
		}

		types := first.Types()
		if len(types) < 2 {
			return errors.Wrapf(entities.ErrSchemaMismatch,
				"relationship %q requires at least two participating types", name)
		}
		for _, t := range types {
			if _, ok := r.types[t]; !ok {
				return errors.Wrapf(entities.ErrSchemaMismatch,
					"relationship %q references unregistered record type %q", name, t)
			}
		}
		for _, d := range declarers {
			if _, ok := r.types[d]; !ok {
				return errors.Wrapf(entities.ErrSchemaMismatch,
					"relationship %q is declared by unregistered record type %q", name, d)
			}
		}

		def := &entities.Definition{
			Name:             name,
			ExternalProperty: first.ExternalProperty,
			Multiplicity:     first.Multiplicity,
			Properties:       append([]string(nil), first.Properties...),
			Types:            append([]string(nil), types...),
			Declarers:        declarers,
			Table:            relationshipTable(name),
		}

		if err := r.resolveStorage(ctx, db, def); err != nil {
			return err
		}

		r.defs[name] = def

		for _, t := range types {
			set, ok := r.deps[t]
			if !ok {
				set = make(map[string]bool)
				r.deps[t] = set
			}
			for _, d := range declarers {
				set[d] = true
			}
		}
	}

	r.resolved = true
	return nil
}

// resolveStorage probes the relationship's table and pins down its
// reference columns. Caller holds the lock.
func (r *Registry) resolveStorage(ctx context.Context, db *sql.DB, def *entities.Definition) error {
	derived := deriveReferenceColumns(def.Types)

	if db == nil {
		// No store attached (pure registry tests): trust the derivation.
		def.Available = true
		def.ReferenceColumns = derived
		return nil
	}

	stored, err := probeColumns(ctx, db, def.Table)
	if err != nil {
		if r.log != nil {
			r.log.Warnw("relationship table missing; relationship unavailable",
				"relationship", def.Name,
				"table", def.Table,
				"error", err,
			)
		}
		def.Available = false
		return nil
	}

	present := make(map[string]bool, len(stored))
	for _, c := range stored {
		present[c] = true
	}

	matched := make(map[string]int, len(def.Types))
	for _, rc := range derived {
		if present[rc.Name] {
			def.ReferenceColumns = append(def.ReferenceColumns, rc)
			matched[rc.Type]++
		}
	}
	for _, t := range def.Types {
		if matched[t] == 0 {
			return errors.Wrapf(entities.ErrSchemaMismatch,
				"relationship table %q has no reference column for type %q",
				def.Table, t)
		}
	}

	def.Available = true
	return nil
}

// probeColumns reads a table's column names without fetching rows.
// Works under both the postgres and sqlite drivers.
func probeColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// Lookup returns the resolved definition for a relationship name.
func (r *Registry) Lookup(name string) (*entities.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, errors.Wrapf(entities.ErrUnknownRelationship, "%q", name)
	}
	return def, nil
}

// Definitions returns every resolved definition, sorted by name.
func (r *Registry) Definitions() []*entities.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*entities.Definition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// DefinitionsFor returns every resolved definition in which recordType
// participates, sorted by name.
func (r *Registry) DefinitionsFor(recordType string) []*entities.Definition {
	var defs []*entities.Definition
	for _, d := range r.Definitions() {
		if d.Participates(recordType) {
			defs = append(defs, d)
		}
	}
	return defs
}

// WritableFor returns every definition whose instance set recordType may
// rewrite from an incoming description, sorted by name.
func (r *Registry) WritableFor(recordType string) []*entities.Definition {
	var defs []*entities.Definition
	for _, d := range r.Definitions() {
		if d.WritableFor(recordType) {
			defs = append(defs, d)
		}
	}
	return defs
}

// DependentsOf returns the set of record types that declare a relationship
// in which recordType participates. These are the types whose records need
// re-derivation when a record of recordType changes.
func (r *Registry) DependentsOf(recordType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.deps[recordType]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
