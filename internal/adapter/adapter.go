// Package adapter turns raw service payloads into repository entities.
//
// Every decoder goes through a typed document whose fields are loose values, so
// a missing or mistyped field is replaced with the documented default: empty
// string for text, nil for optional URLs and dates, zero for numbers. A record
// that is not an object is dropped on its own. Only malformed JSON or a missing
// top-level array fails a whole payload. Adapters never touch the network or
// the store.
package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

// ErrShapeMismatch is returned when a payload lacks an array or object the caller depends on.
var ErrShapeMismatch = errors.New("payload shape mismatch")

const (
	// legacyDateLayout is the older feed shape with a colon-less offset ("Z" for UTC).
	legacyDateLayout = "2006-01-02T15:04:05Z0700"
	// isoDateLayout is the newer feed shape. It requires a numeric offset with a
	// colon, so a legacy "Z" value is rejected.
	isoDateLayout = "2006-01-02T15:04:05-07:00"
)

// parseDate returns nil when the value is absent or does not match layout.
func parseDate(value loose[string], layout string) *time.Time {
	if !value.set || value.value == "" {
		return nil
	}
	t, err := time.Parse(layout, value.value)
	if err != nil {
		return nil
	}
	return &t
}

func ParseLegacyDate(value string) *time.Time {
	return parseDate(loose[string]{value: value, set: true}, legacyDateLayout)
}

func ParseISODate(value string) *time.Time {
	return parseDate(loose[string]{value: value, set: true}, isoDateLayout)
}

func decode(data []byte, v any, what string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

type appConfigDocument struct {
	VideosURL       loose[string] `json:"videosURL"`
	SessionsURL     loose[string] `json:"sessionsURL"`
	LiveURL         loose[string] `json:"liveURL"`
	VideosUpdatedAt loose[string] `json:"videosUpdatedAt"`
	ScheduleEnabled loose[bool]   `json:"scheduleEnabled"`
	IgnoreCache     loose[bool]   `json:"ignoreCache"`
	IsWWDCWeek      loose[bool]   `json:"isWWDCWeek"`
}

func DecodeAppConfig(data []byte) (repository.AppConfig, error) {
	var doc appConfigDocument
	if err := decode(data, &doc, "app config"); err != nil {
		return repository.AppConfig{}, err
	}
	if !doc.VideosURL.set {
		return repository.AppConfig{}, fmt.Errorf("app config: videosURL missing: %w", ErrShapeMismatch)
	}
	return repository.AppConfig{
		VideosURL:       doc.VideosURL.value,
		SessionsURL:     doc.SessionsURL.or(""),
		LiveURL:         doc.LiveURL.or(""),
		VideosUpdatedAt: doc.VideosUpdatedAt.or(""),
		ScheduleEnabled: doc.ScheduleEnabled.or(false),
		IgnoreCache:     doc.IgnoreCache.or(false),
		IsWWDCWeek:      doc.IsWWDCWeek.or(false),
	}, nil
}

// focusList accepts either a list of platform names or a single string.
// Anything else decodes as empty, and non-string list entries are dropped.
type focusList []string

func (f *focusList) UnmarshalJSON(data []byte) error {
	*f = nil
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = focusList{single}
		return nil
	}
	var list looseArray[loose[string]]
	if err := json.Unmarshal(data, &list); err != nil {
		return nil
	}
	for _, item := range list.items {
		if item.set {
			*f = append(*f, item.value)
		}
	}
	return nil
}

type sessionImagesDocument struct {
	Shelf loose[string] `json:"shelf"`
}

type sessionDocument struct {
	ID          looseInt                     `json:"id"`
	Year        looseInt                     `json:"year"`
	Date        loose[string]                `json:"date"`
	Track       loose[string]                `json:"track"`
	Focus       focusList                    `json:"focus"`
	Title       loose[string]                `json:"title"`
	Description loose[string]                `json:"description"`
	DownloadSD  loose[string]                `json:"download_sd"`
	DownloadHD  loose[string]                `json:"download_hd"`
	Slides      loose[string]                `json:"slides"`
	Images      loose[sessionImagesDocument] `json:"images"`
	Duration    looseInt                     `json:"duration"`
}

func adaptSession(doc sessionDocument) repository.Session {
	id := doc.ID.or(0)
	year := doc.Year.or(0)
	return repository.Session{
		Key:           repository.SessionKey(year, id),
		ID:            id,
		Year:          year,
		Date:          doc.Date.or(""),
		Track:         doc.Track.or(""),
		Focus:         strings.Join(doc.Focus, ", "),
		Title:         doc.Title.or(""),
		Summary:       doc.Description.or(""),
		VideoURL:      doc.DownloadSD.or(""),
		HDVideoURL:    doc.DownloadHD.or(""),
		SlidesURL:     doc.Slides.or(""),
		ShelfImageURL: doc.Images.value.Shelf.or(""),
	}
}

// CatalogRecord pairs an adapted session with the raw fields the sync rules need.
type CatalogRecord struct {
	Session  repository.Session
	Duration int
}

type Catalog struct {
	Updated string
	Records []CatalogRecord
}

type catalogDocument struct {
	Updated  loose[string]               `json:"updated"`
	Sessions looseArray[sessionDocument] `json:"sessions"`
}

func DecodeCatalog(data []byte) (Catalog, error) {
	var doc catalogDocument
	if err := decode(data, &doc, "catalog"); err != nil {
		return Catalog{}, err
	}
	if !doc.Sessions.set {
		return Catalog{}, fmt.Errorf("catalog: sessions array missing: %w", ErrShapeMismatch)
	}
	c := Catalog{
		Updated: doc.Updated.or(""),
		Records: make([]CatalogRecord, 0, len(doc.Sessions.items)),
	}
	for _, s := range doc.Sessions.items {
		c.Records = append(c.Records, CatalogRecord{
			Session:  adaptSession(s),
			Duration: s.Duration.or(0),
		})
	}
	return c, nil
}
