package syncer

import (
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/indexer"
	"github.com/foxseedlab/wwdcsync/internal/remote"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		client := do.MustInvoke[remote.Client](i)
		ix := do.MustInvoke[*indexer.Indexer](i)
		bus := do.MustInvoke[*events.Bus](i)
		return NewOrchestrator(cfg, repo, client, ix, bus), nil
	})
}
