package indexer

import (
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/remote"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Indexer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		client := do.MustInvoke[remote.Client](i)
		bus := do.MustInvoke[*events.Bus](i)
		return NewIndexer(repo, client, bus, cfg.IndexerConcurrency), nil
	})
}
