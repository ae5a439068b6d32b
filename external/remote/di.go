package remote

import (
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/remote"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (remote.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPClient(c.ConfigURL, c.TranscriptBaseURL, c.HTTPTimeout), nil
	})
}
