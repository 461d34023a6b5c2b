// Package identity resolves opaque actor ids to a display identity for
// audit entries. The user store itself is owned by the platform outside
// this core; only the lookup crosses the boundary.
package identity

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Identity is the display form of an actor.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// Resolver maps an actor id to its display identity.
type Resolver interface {
	Resolve(ctx context.Context, actorID string) Identity
}

// DBResolver reads the platform's users table. Lookup failure is not an
// error: the audit trail falls back to the stable id.
type DBResolver struct {
	db *gorm.DB
}

func NewDBResolver(db *gorm.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(ctx context.Context, actorID string) Identity {
	identity := Identity{ID: strings.TrimSpace(actorID)}
	if identity.ID == "" || r == nil || r.db == nil {
		return identity
	}

	var row struct {
		Name  string
		Email string
	}
	if err := r.db.WithContext(ctx).Raw(
		`SELECT name, email FROM users WHERE id = ?`,
		identity.ID,
	).Scan(&row).Error; err != nil {
		return identity
	}
	identity.Name = strings.TrimSpace(row.Name)
	identity.Email = strings.TrimSpace(row.Email)
	return identity
}

// Module provides the resolver.
var Module = fx.Module("identity",
	fx.Provide(NewDBResolver),
	fx.Provide(func(r *DBResolver) Resolver { return r }),
)
