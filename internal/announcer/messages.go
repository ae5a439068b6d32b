package announcer

import (
	"fmt"
	"strings"

	"github.com/foxseedlab/wwdcsync/internal/events"
)

const (
	messageWWDCWeekStarted = ":calendar: **WWDC week has started.**"
	messageWWDCWeekEnded   = ":calendar: **WWDC week has ended.**"

	messageIndexingStartedFormat = ":page_facing_up: **Transcript indexing started** for %d sessions."
	messageIndexingStoppedFormat = ":white_check_mark: **Transcript indexing finished.** %d of %d sessions processed."

	messageSessionsChangedFormat = ":arrows_counterclockwise: **%d sessions updated.**"
	messageSessionsListHint      = "-# %s"

	maxListedKeys = 10
)

// discordMessage renders an event for the channel. ok is false for events that
// are not posted.
func discordMessage(e events.Event) (content string, ok bool) {
	switch e.Kind {
	case events.WWDCWeekStarted:
		return messageWWDCWeekStarted, true
	case events.WWDCWeekEnded:
		return messageWWDCWeekEnded, true
	case events.IndexingStarted:
		return fmt.Sprintf(messageIndexingStartedFormat, e.Progress.Total), true
	case events.IndexingStopped:
		return fmt.Sprintf(messageIndexingStoppedFormat, e.Progress.Completed, e.Progress.Total), true
	case events.SessionsChanged:
		if len(e.Keys) == 0 {
			return "", false
		}
		return sessionsChangedMessage(e.Keys), true
	default:
		return "", false
	}
}

func sessionsChangedMessage(keys []string) string {
	title := fmt.Sprintf(messageSessionsChangedFormat, len(keys))
	listed := keys
	suffix := ""
	if len(listed) > maxListedKeys {
		listed = listed[:maxListedKeys]
		suffix = fmt.Sprintf(" and %d more", len(keys)-maxListedKeys)
	}
	return title + "\n" + fmt.Sprintf(messageSessionsListHint, strings.Join(listed, " ")+suffix)
}
