package repository

import (
	"context"
	"fmt"

	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres connects a pgx pool and exposes it through database/sql so both
// backends share the same query code.
func OpenPostgres(ctx context.Context, databaseURL string) (repository.Repository, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db := stdlib.OpenDBFromPool(p)
	if err := RunMigration(ctx, db); err != nil {
		db.Close()
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return &SQLRepository{db: db, dialect: postgresDialect, onClose: p.Close}, nil
}
