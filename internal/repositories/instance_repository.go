package repositories

import (
	"context"

	"github.com/waffle-iron/archivesspace/internal/entities"
)

// InstanceRepository is CRUD over relationship rows plus participant
// lookup and property projection.
type InstanceRepository interface {
	// Create inserts an instance connecting a and b with the given
	// properties and list position. When both referents share a type the
	// two-column form is used and equal ids fail with
	// entities.ErrSelfReference.
	Create(ctx context.Context, db DBTX, def *entities.Definition, a, b entities.Ref, properties map[string]any, position int) (*entities.RelationshipInstance, error)

	// FindByParticipant returns every instance touching ref through any
	// reference column that could hold ref's type, ordered by position.
	FindByParticipant(ctx context.Context, db DBTX, def *entities.Definition, ref entities.Ref) ([]*entities.RelationshipInstance, error)

	// FindByParticipants is the bulk form: one read across all candidate
	// columns, grouped by resolved referent. O(columns) instead of
	// O(records x columns).
	FindByParticipants(ctx context.Context, db DBTX, def *entities.Definition, refs []entities.Ref) (map[entities.Ref][]*entities.RelationshipInstance, error)

	// FindReferencing returns every instance whose given reference column
	// holds id, ordered by position.
	FindReferencing(ctx context.Context, db DBTX, def *entities.Definition, column string, id int64) ([]*entities.RelationshipInstance, error)

	// ValuesForProperty returns the distinct values of one property across
	// every instance touching ref.
	ValuesForProperty(ctx context.Context, db DBTX, def *entities.Definition, ref entities.Ref, property string) ([]any, error)

	// UpdateReferences rewrites an instance's reference columns (nil
	// clears a column) and stamps a new modification timestamp.
	UpdateReferences(ctx context.Context, db DBTX, def *entities.Definition, instanceID int64, set map[string]*int64) error

	// DeleteForParticipant removes every instance touching ref and returns
	// the number removed.
	DeleteForParticipant(ctx context.Context, db DBTX, def *entities.Definition, ref entities.Ref) (int64, error)

	// DeleteByID removes a single instance.
	DeleteByID(ctx context.Context, db DBTX, def *entities.Definition, id int64) error
}
