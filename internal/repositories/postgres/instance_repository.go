package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// PostgresInstanceRepository implements InstanceRepository over the
// per-relationship storage tables.
type PostgresInstanceRepository struct {
	resolver *registry.Resolver
}

// NewPostgresInstanceRepository creates a new PostgreSQL instance repository.
func NewPostgresInstanceRepository(resolver *registry.Resolver) repositories.InstanceRepository {
	return &PostgresInstanceRepository{resolver: resolver}
}

// Create inserts an instance connecting a and b. When both referents share
// a type the two-column form is used; equal ids are rejected.
func (r *PostgresInstanceRepository) Create(ctx context.Context, db repositories.DBTX, def *entities.Definition, a, b entities.Ref, properties map[string]any, position int) (*entities.RelationshipInstance, error) {
	var colA, colB string
	if a.Type == b.Type {
		if a.ID == b.ID {
			return nil, errors.Wrapf(entities.ErrSelfReference,
				"relationship %q cannot link %s to itself", def.Name, a)
		}
		cols, err := r.resolver.ReferenceColumnsFor(ctx, def, a.Type)
		if err != nil {
			return nil, err
		}
		if len(cols) < 2 {
			return nil, errors.Wrapf(entities.ErrSchemaMismatch,
				"relationship %q needs two %s reference columns, has %d",
				def.Name, a.Type, len(cols))
		}
		colA, colB = cols[0], cols[1]
	} else {
		colsA, err := r.resolver.ReferenceColumnsFor(ctx, def, a.Type)
		if err != nil {
			return nil, err
		}
		colsB, err := r.resolver.ReferenceColumnsFor(ctx, def, b.Type)
		if err != nil {
			return nil, err
		}
		colA, colB = colsA[0], colsB[0]
	}

	for name := range properties {
		if !hasProperty(def, name) {
			return nil, errors.Newf("relationship %q has no property %q", def.Name, name)
		}
	}

	now := time.Now()
	cols := []string{colA, colB}
	args := []any{a.ID, b.ID}
	props := make(map[string]any, len(properties))
	for _, p := range def.Properties {
		cols = append(cols, p)
		v, ok := properties[p]
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, v)
		props[p] = v
	}
	cols = append(cols, "position", "created_at", "updated_at")
	args = append(args, position, now, now)

	inst := &entities.RelationshipInstance{
		Relationship: def.Name,
		References:   map[string]int64{colA: a.ID, colB: b.ID},
		Properties:   props,
		Position:     position,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := inst.Validate(def); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		def.Table, strings.Join(cols, ", "), placeholders(1, len(args)))
	if err := db.QueryRowContext(ctx, query, args...).Scan(&inst.ID); err != nil {
		return nil, errors.Wrapf(err, "failed to create %q instance", def.Name)
	}
	return inst, nil
}

// FindByParticipant returns every instance touching ref, ordered by
// position. Every reference column that could hold ref's type is scanned.
func (r *PostgresInstanceRepository) FindByParticipant(ctx context.Context, db repositories.DBTX, def *entities.Definition, ref entities.Ref) ([]*entities.RelationshipInstance, error) {
	cols, err := r.resolver.ReferenceColumnsFor(ctx, def, ref.Type)
	if err != nil {
		return nil, err
	}

	predicate, args := participantPredicate(cols, ref.ID, 1)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY position, id",
		selectColumns(def), def.Table, predicate)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q instances", def.Name)
	}
	defer rows.Close()

	return scanInstances(def, rows)
}

// FindByParticipants is a single bulk read across all candidate columns,
// grouped by the resolved referent.
func (r *PostgresInstanceRepository) FindByParticipants(ctx context.Context, db repositories.DBTX, def *entities.Definition, refs []entities.Ref) (map[entities.Ref][]*entities.RelationshipInstance, error) {
	out := make(map[entities.Ref][]*entities.RelationshipInstance, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	wanted := make(map[entities.Ref]bool, len(refs))
	idsByType := make(map[string][]int64)
	for _, ref := range refs {
		if wanted[ref] {
			continue
		}
		wanted[ref] = true
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}

	var predicates []string
	var args []any
	next := 1
	for _, rc := range def.ReferenceColumns {
		ids, ok := idsByType[rc.Type]
		if !ok {
			continue
		}
		predicates = append(predicates,
			fmt.Sprintf("%s IN (%s)", rc.Name, placeholders(next, len(ids))))
		for _, id := range ids {
			args = append(args, id)
		}
		next += len(ids)
	}
	if len(predicates) == 0 {
		return out, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY position, id",
		selectColumns(def), def.Table, strings.Join(predicates, " OR "))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bulk read %q instances", def.Name)
	}
	defer rows.Close()

	instances, err := scanInstances(def, rows)
	if err != nil {
		return nil, err
	}

	for _, inst := range instances {
		for _, rc := range def.ReferenceColumns {
			id, ok := inst.References[rc.Name]
			if !ok {
				continue
			}
			ref := entities.Ref{Type: rc.Type, ID: id}
			if wanted[ref] {
				out[ref] = append(out[ref], inst)
			}
		}
	}
	return out, nil
}

// FindReferencing returns every instance whose given column holds id.
func (r *PostgresInstanceRepository) FindReferencing(ctx context.Context, db repositories.DBTX, def *entities.Definition, column string, id int64) ([]*entities.RelationshipInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY position, id",
		selectColumns(def), def.Table, column)

	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q instances by %s", def.Name, column)
	}
	defer rows.Close()

	return scanInstances(def, rows)
}

// ValuesForProperty returns the distinct values of one property across
// every instance touching ref.
func (r *PostgresInstanceRepository) ValuesForProperty(ctx context.Context, db repositories.DBTX, def *entities.Definition, ref entities.Ref, property string) ([]any, error) {
	if !hasProperty(def, property) {
		return nil, errors.Newf("relationship %q has no property %q", def.Name, property)
	}
	cols, err := r.resolver.ReferenceColumnsFor(ctx, def, ref.Type)
	if err != nil {
		return nil, err
	}

	predicate, args := participantPredicate(cols, ref.ID, 1)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE (%s) AND %s IS NOT NULL",
		property, def.Table, predicate, property)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q values of %q", property, def.Name)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan property value")
		}
		values = append(values, normalizeValue(v))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating property values")
	}
	return values, nil
}

// UpdateReferences rewrites an instance's reference columns and stamps a
// new modification timestamp. A nil value clears the column.
func (r *PostgresInstanceRepository) UpdateReferences(ctx context.Context, db repositories.DBTX, def *entities.Definition, instanceID int64, set map[string]*int64) error {
	if len(set) == 0 {
		return nil
	}

	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	assignments := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	next := 1
	for _, c := range cols {
		assignments = append(assignments, c+" = $"+strconv.Itoa(next))
		if v := set[c]; v != nil {
			args = append(args, *v)
		} else {
			args = append(args, nil)
		}
		next++
	}
	assignments = append(assignments, "updated_at = $"+strconv.Itoa(next))
	args = append(args, time.Now(), instanceID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		def.Table, strings.Join(assignments, ", "), next+1)
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to rewrite %q instance %d", def.Name, instanceID)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Newf("relationship %q instance %d not found", def.Name, instanceID)
	}
	return nil
}

// DeleteForParticipant removes every instance touching ref.
func (r *PostgresInstanceRepository) DeleteForParticipant(ctx context.Context, db repositories.DBTX, def *entities.Definition, ref entities.Ref) (int64, error) {
	cols, err := r.resolver.ReferenceColumnsFor(ctx, def, ref.Type)
	if err != nil {
		return 0, err
	}

	predicate, args := participantPredicate(cols, ref.ID, 1)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", def.Table, predicate)
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete %q instances of %s", def.Name, ref)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return rowsAffected, nil
}

// DeleteByID removes a single instance.
func (r *PostgresInstanceRepository) DeleteByID(ctx context.Context, db repositories.DBTX, def *entities.Definition, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", def.Table)
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return errors.Wrapf(err, "failed to delete %q instance %d", def.Name, id)
	}
	return nil
}

// selectColumns is the stable column list scanned by scanInstances.
func selectColumns(def *entities.Definition) string {
	cols := make([]string, 0, len(def.ReferenceColumns)+len(def.Properties)+4)
	cols = append(cols, "id")
	for _, rc := range def.ReferenceColumns {
		cols = append(cols, rc.Name)
	}
	cols = append(cols, def.Properties...)
	cols = append(cols, "position", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

// scanInstances consumes rows produced with selectColumns.
func scanInstances(def *entities.Definition, rows *sql.Rows) ([]*entities.RelationshipInstance, error) {
	var instances []*entities.RelationshipInstance
	for rows.Next() {
		var (
			id        int64
			position  int
			createdAt time.Time
			updatedAt time.Time
		)
		refVals := make([]sql.NullInt64, len(def.ReferenceColumns))
		propVals := make([]any, len(def.Properties))

		dest := make([]any, 0, len(refVals)+len(propVals)+4)
		dest = append(dest, &id)
		for i := range refVals {
			dest = append(dest, &refVals[i])
		}
		for i := range propVals {
			dest = append(dest, &propVals[i])
		}
		dest = append(dest, &position, &createdAt, &updatedAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %q instance", def.Name)
		}

		inst := &entities.RelationshipInstance{
			ID:           id,
			Relationship: def.Name,
			References:   make(map[string]int64, 2),
			Properties:   make(map[string]any, len(def.Properties)),
			Position:     position,
			CreatedAt:    createdAt,
			UpdatedAt:    updatedAt,
		}
		for i, rc := range def.ReferenceColumns {
			if refVals[i].Valid {
				inst.References[rc.Name] = refVals[i].Int64
			}
		}
		for i, p := range def.Properties {
			if v := normalizeValue(propVals[i]); v != nil {
				inst.Properties[p] = v
			}
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %q instances", def.Name)
	}
	return instances, nil
}

// participantPredicate matches any reference column holding id.
func participantPredicate(cols []string, id int64, argStart int) (string, []any) {
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		parts = append(parts, c+" = $"+strconv.Itoa(argStart+i))
		args = append(args, id)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// normalizeValue converts driver byte slices to strings so property values
// compare the same under both the postgres and sqlite drivers.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func hasProperty(def *entities.Definition, name string) bool {
	for _, p := range def.Properties {
		if p == name {
			return true
		}
	}
	return false
}
