package repository

import (
	"fmt"
	"strings"
	"time"
)

const (
	// LegacyIDThreshold separates WWDC sessions from the Apple TV tech talks
	// that were published in the same catalog.
	LegacyIDThreshold = 10000

	eventWWDC      = "WWDC"
	eventTechTalks = "Apple TV Tech Talks"
)

// FarFuture is the start time given to scheduled sessions that are never live.
var FarFuture = time.Date(4001, time.January, 1, 0, 0, 0, 0, time.UTC)

// SessionKey builds the composite primary key shared by Session and ScheduledSession.
func SessionKey(year, id int) string {
	return fmt.Sprintf("#%d-%d", year, id)
}

// ParseSessionKey splits a key built by SessionKey.
func ParseSessionKey(key string) (year, id int, ok bool) {
	if _, err := fmt.Sscanf(key, "#%d-%d", &year, &id); err != nil {
		return 0, 0, false
	}
	return year, id, true
}

type AppConfig struct {
	VideosURL       string
	SessionsURL     string
	LiveURL         string
	VideosUpdatedAt string
	ScheduleEnabled bool
	IgnoreCache     bool
	IsWWDCWeek      bool
}

// Equal reports whether both configs carry the same values. A nil other is never equal.
func (c AppConfig) Equal(other *AppConfig) bool {
	if other == nil {
		return false
	}
	return c == *other
}

// SyncState is the sync engine's own bookkeeping. The remote service never sends it.
type SyncState struct {
	// CatalogStamp is the catalog "updated" value of the last successful merge.
	CatalogStamp    string
	CatalogPending  bool
	SchedulePending bool
	// LegacyCleanedUp is set once pre-existing tech talk records were removed.
	LegacyCleanedUp bool
}

type UserState struct {
	Favorite        bool
	Downloaded      bool
	Progress        float64
	CurrentPosition float64
}

type Session struct {
	Key           string
	ID            int
	Year          int
	Date          string
	Track         string
	Focus         string
	Title         string
	Summary       string
	VideoURL      string
	HDVideoURL    string
	SlidesURL     string
	ShelfImageURL string
	UserState     UserState
	// HasTranscript is maintained by the store and ignored on writes.
	HasTranscript bool
}

// SemanticallyEqual compares the remotely sourced fields only.
func (s Session) SemanticallyEqual(other Session) bool {
	return s.ID == other.ID &&
		s.Year == other.Year &&
		s.Date == other.Date &&
		s.Track == other.Track &&
		s.Focus == other.Focus &&
		s.Title == other.Title &&
		s.Summary == other.Summary &&
		s.VideoURL == other.VideoURL &&
		s.HDVideoURL == other.HDVideoURL &&
		s.SlidesURL == other.SlidesURL
}

func (s Session) Event() string {
	if s.ID > LegacyIDThreshold {
		return eventTechTalks
	}
	return eventWWDC
}

func (s Session) IsExtra() bool {
	return s.Event() != eventWWDC
}

func (s Session) ShareURL() string {
	return fmt.Sprintf("wwdc://%d/%d", s.Year, s.ID)
}

// HDURL returns the HD video URL, or false when the session only has SD video.
func (s Session) HDURL() (string, bool) {
	if s.HDVideoURL == "" {
		return "", false
	}
	return s.HDVideoURL, true
}

func (s Session) Subtitle() string {
	return fmt.Sprintf("%d | %s | %s", s.Year, s.Track, s.Focus)
}

type Track struct {
	Name         string
	Color        string
	DarkColor    string
	LightBGColor string
	TitleColor   string
}

type ScheduledSession struct {
	Key       string
	ID        int
	Year      int
	Title     string
	TrackName string
	Type      string
	Room      string
	StartsAt  time.Time
	EndsAt    time.Time
}

// IsVideoOnly reports whether the slot is a recorded video rather than a live event.
func (s ScheduledSession) IsVideoOnly() bool {
	return strings.EqualFold(s.Type, "video")
}

func (s ScheduledSession) IsLive(now time.Time) bool {
	return !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

func (s ScheduledSession) SemanticallyEqual(other ScheduledSession) bool {
	return s.Key == other.Key &&
		s.ID == other.ID &&
		s.Year == other.Year &&
		s.Title == other.Title &&
		s.TrackName == other.TrackName &&
		s.Type == other.Type &&
		s.Room == other.Room &&
		s.StartsAt.Equal(other.StartsAt) &&
		s.EndsAt.Equal(other.EndsAt)
}

type Transcript struct {
	ID         string
	SessionKey string
	FullText   string
	Lines      []TranscriptLine
}

// Attach makes the transcript owned by the given session and points every line back at it.
func (t *Transcript) Attach(id, sessionKey string) {
	t.ID = id
	t.SessionKey = sessionKey
	for i := range t.Lines {
		t.Lines[i].TranscriptID = id
	}
}

type TranscriptLine struct {
	TranscriptID string
	Position     int
	Timecode     float64
	Text         string
}

// LiveSession is a live stream announced by the live feed. It is not persisted.
type LiveSession struct {
	ID             int
	Title          string
	Summary        string
	StreamURL      string
	StartsAt       *time.Time
	EndsAt         *time.Time
	IsLiveRightNow bool
}
