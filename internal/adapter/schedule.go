package adapter

import (
	"fmt"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

type trackDocument struct {
	Name         loose[string] `json:"name"`
	Color        loose[string] `json:"color"`
	DarkColor    loose[string] `json:"darkColor"`
	LightBGColor loose[string] `json:"lightBGColor"`
	TitleColor   loose[string] `json:"titleColor"`
}

type scheduledSessionDocument struct {
	ID        looseInt      `json:"id"`
	Year      looseInt      `json:"year"`
	Title     loose[string] `json:"title"`
	Track     loose[string] `json:"track"`
	Type      loose[string] `json:"type"`
	Room      loose[string] `json:"room"`
	StartTime loose[string] `json:"start_time"`
	EndTime   loose[string] `json:"end_time"`
}

type scheduleResponseDocument struct {
	Tracks   looseArray[trackDocument]            `json:"tracks"`
	Sessions looseArray[scheduledSessionDocument] `json:"sessions"`
}

type scheduleDocument struct {
	Response loose[scheduleResponseDocument] `json:"response"`
}

// Schedule holds the decoded schedule feed. Sessions is nil when the feed had
// tracks but no sessions array, so callers can persist tracks before failing.
type Schedule struct {
	Tracks   []repository.Track
	Sessions []repository.ScheduledSession
}

func adaptTrack(doc trackDocument) repository.Track {
	return repository.Track{
		Name:         doc.Name.or(""),
		Color:        doc.Color.or(""),
		DarkColor:    doc.DarkColor.or(""),
		LightBGColor: doc.LightBGColor.or(""),
		TitleColor:   doc.TitleColor.or(""),
	}
}

// adaptScheduledSession maps a schedule entry. Entries of type "video" are
// recordings and always receive repository.FarFuture as their start time.
func adaptScheduledSession(doc scheduledSessionDocument) repository.ScheduledSession {
	id := doc.ID.or(0)
	year := doc.Year.or(0)
	s := repository.ScheduledSession{
		Key:       repository.SessionKey(year, id),
		ID:        id,
		Year:      year,
		Title:     doc.Title.or(""),
		TrackName: doc.Track.or(""),
		Type:      doc.Type.or(""),
		Room:      doc.Room.or(""),
	}
	if t := parseDate(doc.StartTime, isoDateLayout); t != nil {
		s.StartsAt = t.UTC()
	}
	if t := parseDate(doc.EndTime, isoDateLayout); t != nil {
		s.EndsAt = t.UTC()
	}
	if s.IsVideoOnly() {
		s.StartsAt = repository.FarFuture
	}
	return s
}

// DecodeSchedule requires the tracks array; a missing sessions array is
// reported through ErrShapeMismatch alongside the decoded tracks.
func DecodeSchedule(data []byte) (Schedule, error) {
	var doc scheduleDocument
	if err := decode(data, &doc, "schedule"); err != nil {
		return Schedule{}, err
	}
	resp := doc.Response.value
	if !doc.Response.set || !resp.Tracks.set {
		return Schedule{}, fmt.Errorf("schedule: tracks array missing: %w", ErrShapeMismatch)
	}
	sched := Schedule{Tracks: make([]repository.Track, 0, len(resp.Tracks.items))}
	for _, t := range resp.Tracks.items {
		sched.Tracks = append(sched.Tracks, adaptTrack(t))
	}
	if !resp.Sessions.set {
		return sched, fmt.Errorf("schedule: sessions array missing: %w", ErrShapeMismatch)
	}
	sched.Sessions = make([]repository.ScheduledSession, 0, len(resp.Sessions.items))
	for _, s := range resp.Sessions.items {
		sched.Sessions = append(sched.Sessions, adaptScheduledSession(s))
	}
	return sched, nil
}
