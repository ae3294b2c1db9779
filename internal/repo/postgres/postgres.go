// Package postgres implements the entity store on PostgreSQL via pgx.
package postgres

import (
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore wires every repository onto pool. Closing the store closes the pool.
func NewStore(pool *pgxpool.Pool) *repo.Store {
	return &repo.Store{
		Visitors: NewVisitorRepo(pool),
		Hosts:    NewHostRepo(pool),
		Gates:    NewGateRepo(pool),
		Admins:   NewAdminRepo(pool),
		Close:    pool.Close,
	}
}
