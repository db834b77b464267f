package registry

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/pkg/cache"
)

// resolverTTL bounds cache entries; definitions are immutable after
// Resolve so staleness is not a concern.
const resolverTTL = time.Hour

// Resolver maps a record type to the reference columns that may hold a
// foreign key of that type on a relationship's storage row. Results are
// cached per relationship/type pair.
type Resolver struct {
	cache cache.Cache
}

// NewResolver creates a resolver backed by the given cache.
// A nil cache disables caching.
func NewResolver(c cache.Cache) *Resolver {
	return &Resolver{cache: c}
}

// ReferenceColumnsFor returns the ordered list of reference columns on
// def's storage that may reference recordType. Every matching column is
// returned. Fails with a schema mismatch when a declared participating
// type has no matching column.
func (r *Resolver) ReferenceColumnsFor(ctx context.Context, def *entities.Definition, recordType string) ([]string, error) {
	key := def.Name + "\x00" + recordType
	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, key); ok {
			if cols, ok := v.([]string); ok {
				return cols, nil
			}
		}
	}

	cols, err := def.ColumnsFor(recordType)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, key, cols, resolverTTL)
	}
	return cols, nil
}

// deriveReferenceColumns names a reference column per participating type
// occurrence: <type>_id, or <type>_id_0/<type>_id_1 when a type
// participates more than once. Deterministic by declaration order.
func deriveReferenceColumns(types []string) []entities.ReferenceColumn {
	total := make(map[string]int, len(types))
	for _, t := range types {
		total[t]++
	}

	seen := make(map[string]int, len(types))
	cols := make([]entities.ReferenceColumn, 0, len(types))
	for _, t := range types {
		name := t + "_id"
		if total[t] > 1 {
			name += "_" + strconv.Itoa(seen[t])
		}
		seen[t]++
		cols = append(cols, entities.ReferenceColumn{Name: name, Type: t})
	}
	return cols
}

// relationshipTable names a relationship's storage table deterministically
// from the relationship name.
func relationshipTable(name string) string {
	return strings.ToLower(name) + "_rlshp"
}
