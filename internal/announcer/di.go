package announcer

import (
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/discord"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Announcer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		bus := do.MustInvoke[*events.Bus](i)
		wh := do.MustInvoke[webhook.Sender](i)
		var dc discord.Client
		if cfg.DiscordEnabled() {
			dc = do.MustInvoke[discord.Client](i)
		}
		return NewAnnouncer(bus, dc, cfg.DiscordChannelID, wh), nil
	})
}
