package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		if cfg.UsesPostgres() {
			return OpenPostgres(ctx, cfg.DatabaseURL)
		}
		return OpenSQLite(ctx, cfg.DatabaseURL)
	})
}
