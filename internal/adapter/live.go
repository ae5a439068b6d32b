package adapter

import (
	"fmt"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

type liveSessionDocument struct {
	ID             looseInt      `json:"id"`
	Title          loose[string] `json:"title"`
	Description    loose[string] `json:"description"`
	Stream         loose[string] `json:"stream"`
	URL            loose[string] `json:"url"`
	StartsAt       loose[string] `json:"starts_at"`
	StartDate      loose[string] `json:"start_date"`
	EndDate        loose[string] `json:"end_date"`
	IsLiveRightNow loose[bool]   `json:"isLiveRightNow"`
}

type liveFeedDocument struct {
	LiveSessions looseArray[liveSessionDocument] `json:"live_sessions"`
	Special      looseArray[liveSessionDocument] `json:"special"`
}

func adaptLiveCommon(doc liveSessionDocument) repository.LiveSession {
	return repository.LiveSession{
		ID:             doc.ID.or(0),
		Title:          doc.Title.or(""),
		Summary:        doc.Description.or(""),
		IsLiveRightNow: doc.IsLiveRightNow.or(false),
	}
}

// adaptSpecialLiveSession reads the older special-event shape: "stream" and a
// legacy colon-less "starts_at". An ISO value here yields a nil start time.
func adaptSpecialLiveSession(doc liveSessionDocument) repository.LiveSession {
	s := adaptLiveCommon(doc)
	s.StreamURL = doc.Stream.or("")
	s.StartsAt = parseDate(doc.StartsAt, legacyDateLayout)
	return s
}

// adaptLiveSession reads the newer shape: "url", ISO "start_date" and "end_date".
func adaptLiveSession(doc liveSessionDocument) repository.LiveSession {
	s := adaptLiveCommon(doc)
	s.StreamURL = doc.URL.or("")
	s.StartsAt = parseDate(doc.StartDate, isoDateLayout)
	s.EndsAt = parseDate(doc.EndDate, isoDateLayout)
	return s
}

// DecodeLiveSessions returns regular live sessions followed by special events.
func DecodeLiveSessions(data []byte) ([]repository.LiveSession, error) {
	var doc liveFeedDocument
	if err := decode(data, &doc, "live feed"); err != nil {
		return nil, err
	}
	if !doc.LiveSessions.set {
		return nil, fmt.Errorf("live feed: live_sessions array missing: %w", ErrShapeMismatch)
	}
	out := make([]repository.LiveSession, 0, len(doc.LiveSessions.items)+len(doc.Special.items))
	for _, s := range doc.LiveSessions.items {
		out = append(out, adaptLiveSession(s))
	}
	for _, s := range doc.Special.items {
		out = append(out, adaptSpecialLiveSession(s))
	}
	return out, nil
}
