package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

type dialect struct {
	name         string
	dollarParams bool
	containsFunc string
}

var (
	sqliteDialect   = dialect{name: "sqlite", containsFunc: "instr"}
	postgresDialect = dialect{name: "postgres", dollarParams: true, containsFunc: "strpos"}
)

// rebind rewrites ? placeholders into $n for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository implements repository.Repository on top of database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
	onClose func()
}

func (r *SQLRepository) Close() error {
	err := r.db.Close()
	if r.onClose != nil {
		r.onClose()
	}
	return err
}

func (r *SQLRepository) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	handle := &txHandle{tx: sqlTx, dialect: r.dialect}
	handle.open.Store(true)
	finished := false
	defer func() {
		handle.open.Store(false)
		if !finished {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(handle); err != nil {
		finished = true
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	finished = true
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrCommitFailed, err)
	}
	return nil
}

func (r *SQLRepository) AppConfig(ctx context.Context) (*repository.AppConfig, error) {
	return getAppConfig(ctx, r.db, r.dialect)
}

func (r *SQLRepository) SyncState(ctx context.Context) (repository.SyncState, error) {
	return getSyncState(ctx, r.db)
}

func (r *SQLRepository) Session(ctx context.Context, key string) (*repository.Session, error) {
	return getSession(ctx, r.db, r.dialect, key)
}

func (r *SQLRepository) Sessions(ctx context.Context, filter repository.SessionFilter) ([]repository.Session, error) {
	return listSessions(ctx, r.db, r.dialect, filter)
}

func (r *SQLRepository) Track(ctx context.Context, name string) (*repository.Track, error) {
	return getTrack(ctx, r.db, r.dialect, name)
}

func (r *SQLRepository) ScheduledSession(ctx context.Context, key string) (*repository.ScheduledSession, error) {
	return getScheduledSession(ctx, r.db, r.dialect, key)
}

func (r *SQLRepository) Transcript(ctx context.Context, sessionKey string) (*repository.Transcript, error) {
	return getTranscript(ctx, r.db, r.dialect, sessionKey)
}

type txHandle struct {
	tx      *sql.Tx
	dialect dialect
	open    atomic.Bool
}

func (t *txHandle) guard(op string) {
	if !t.open.Load() {
		panic(repository.PreconditionViolation{Op: op})
	}
}

func (t *txHandle) AppConfig(ctx context.Context) (*repository.AppConfig, error) {
	t.guard("AppConfig")
	return getAppConfig(ctx, t.tx, t.dialect)
}

func (t *txHandle) SyncState(ctx context.Context) (repository.SyncState, error) {
	t.guard("SyncState")
	return getSyncState(ctx, t.tx)
}

func (t *txHandle) Session(ctx context.Context, key string) (*repository.Session, error) {
	t.guard("Session")
	return getSession(ctx, t.tx, t.dialect, key)
}

func (t *txHandle) Sessions(ctx context.Context, filter repository.SessionFilter) ([]repository.Session, error) {
	t.guard("Sessions")
	return listSessions(ctx, t.tx, t.dialect, filter)
}

func (t *txHandle) Track(ctx context.Context, name string) (*repository.Track, error) {
	t.guard("Track")
	return getTrack(ctx, t.tx, t.dialect, name)
}

func (t *txHandle) ScheduledSession(ctx context.Context, key string) (*repository.ScheduledSession, error) {
	t.guard("ScheduledSession")
	return getScheduledSession(ctx, t.tx, t.dialect, key)
}

func (t *txHandle) Transcript(ctx context.Context, sessionKey string) (*repository.Transcript, error) {
	t.guard("Transcript")
	return getTranscript(ctx, t.tx, t.dialect, sessionKey)
}

func (t *txHandle) ReplaceAppConfig(ctx context.Context, cfg repository.AppConfig) error {
	t.guard("ReplaceAppConfig")
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM app_config`); err != nil {
		return fmt.Errorf("delete app config: %w", err)
	}
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO app_config (id, videos_url, sessions_url, live_url, videos_updated_at, schedule_enabled, ignore_cache, is_wwdc_week)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`),
		cfg.VideosURL, cfg.SessionsURL, cfg.LiveURL, cfg.VideosUpdatedAt, cfg.ScheduleEnabled, cfg.IgnoreCache, cfg.IsWWDCWeek)
	if err != nil {
		return fmt.Errorf("insert app config: %w", err)
	}
	return nil
}

func (t *txHandle) ReplaceSyncState(ctx context.Context, state repository.SyncState) error {
	t.guard("ReplaceSyncState")
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO sync_state (id, catalog_stamp, catalog_pending, schedule_pending, legacy_cleaned_up)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			catalog_stamp = excluded.catalog_stamp,
			catalog_pending = excluded.catalog_pending,
			schedule_pending = excluded.schedule_pending,
			legacy_cleaned_up = excluded.legacy_cleaned_up`),
		state.CatalogStamp, state.CatalogPending, state.SchedulePending, state.LegacyCleanedUp)
	if err != nil {
		return fmt.Errorf("store sync state: %w", err)
	}
	return nil
}

func (t *txHandle) UpsertSession(ctx context.Context, s repository.Session) error {
	t.guard("UpsertSession")
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO sessions (session_key, id, year, date_text, track, focus, title, summary, video_url, hd_video_url, slides_url, shelf_image_url, favorite, downloaded, progress, current_position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_key) DO UPDATE SET
			id = excluded.id,
			year = excluded.year,
			date_text = excluded.date_text,
			track = excluded.track,
			focus = excluded.focus,
			title = excluded.title,
			summary = excluded.summary,
			video_url = excluded.video_url,
			hd_video_url = excluded.hd_video_url,
			slides_url = excluded.slides_url,
			shelf_image_url = excluded.shelf_image_url,
			favorite = excluded.favorite,
			downloaded = excluded.downloaded,
			progress = excluded.progress,
			current_position = excluded.current_position`),
		s.Key, s.ID, s.Year, s.Date, s.Track, s.Focus, s.Title, s.Summary, s.VideoURL, s.HDVideoURL, s.SlidesURL, s.ShelfImageURL,
		s.UserState.Favorite, s.UserState.Downloaded, s.UserState.Progress, s.UserState.CurrentPosition)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.Key, err)
	}
	return nil
}

func (t *txHandle) UpdateUserState(ctx context.Context, key string, state repository.UserState) error {
	t.guard("UpdateUserState")
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`UPDATE sessions SET favorite = ?, downloaded = ?, progress = ?, current_position = ? WHERE session_key = ?`),
		state.Favorite, state.Downloaded, state.Progress, state.CurrentPosition, key)
	if err != nil {
		return fmt.Errorf("update user state for %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update user state for %s: %w", key, repository.ErrNotFound)
	}
	return nil
}

func (t *txHandle) DeleteSessionsAboveID(ctx context.Context, id int) (int64, error) {
	t.guard("DeleteSessionsAboveID")
	statements := []string{
		`DELETE FROM transcript_lines WHERE transcript_id IN (
			SELECT tr.id FROM transcripts tr JOIN sessions s ON s.session_key = tr.session_key WHERE s.id > ?)`,
		`DELETE FROM transcripts WHERE session_key IN (SELECT session_key FROM sessions WHERE id > ?)`,
	}
	for _, stmt := range statements {
		if _, err := t.tx.ExecContext(ctx, t.dialect.rebind(stmt), id); err != nil {
			return 0, fmt.Errorf("delete transcripts of sessions above %d: %w", id, err)
		}
	}
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(`DELETE FROM sessions WHERE id > ?`), id)
	if err != nil {
		return 0, fmt.Errorf("delete sessions above %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txHandle) UpsertTrack(ctx context.Context, tr repository.Track) error {
	t.guard("UpsertTrack")
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO tracks (name, color, dark_color, light_bg_color, title_color)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
			color = excluded.color,
			dark_color = excluded.dark_color,
			light_bg_color = excluded.light_bg_color,
			title_color = excluded.title_color`),
		tr.Name, tr.Color, tr.DarkColor, tr.LightBGColor, tr.TitleColor)
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", tr.Name, err)
	}
	return nil
}

func (t *txHandle) UpsertScheduledSession(ctx context.Context, s repository.ScheduledSession) error {
	t.guard("UpsertScheduledSession")
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO scheduled_sessions (session_key, id, year, title, track_name, slot_type, room, starts_at, ends_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_key) DO UPDATE SET
			id = excluded.id,
			year = excluded.year,
			title = excluded.title,
			track_name = excluded.track_name,
			slot_type = excluded.slot_type,
			room = excluded.room,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at`),
		s.Key, s.ID, s.Year, s.Title, nullableString(s.TrackName), s.Type, s.Room, toMillis(s.StartsAt), toMillis(s.EndsAt))
	if err != nil {
		return fmt.Errorf("upsert scheduled session %s: %w", s.Key, err)
	}
	return nil
}

func (t *txHandle) AddTranscript(ctx context.Context, tr repository.Transcript) error {
	t.guard("AddTranscript")
	_, err := t.tx.ExecContext(ctx, t.dialect.rebind(
		`INSERT INTO transcripts (id, session_key, full_text) VALUES (?, ?, ?)`),
		tr.ID, tr.SessionKey, tr.FullText)
	if err != nil {
		return fmt.Errorf("insert transcript for %s: %w", tr.SessionKey, err)
	}
	insertLine := t.dialect.rebind(`INSERT INTO transcript_lines (transcript_id, line_index, timecode, body) VALUES (?, ?, ?, ?)`)
	for i, line := range tr.Lines {
		if _, err := t.tx.ExecContext(ctx, insertLine, tr.ID, i, line.Timecode, line.Text); err != nil {
			return fmt.Errorf("insert transcript line %d for %s: %w", i, tr.SessionKey, err)
		}
	}
	return nil
}

func getAppConfig(ctx context.Context, q querier, _ dialect) (*repository.AppConfig, error) {
	row := q.QueryRowContext(ctx,
		`SELECT videos_url, sessions_url, live_url, videos_updated_at, schedule_enabled, ignore_cache, is_wwdc_week
		 FROM app_config ORDER BY id DESC LIMIT 1`)
	var c repository.AppConfig
	err := row.Scan(&c.VideosURL, &c.SessionsURL, &c.LiveURL, &c.VideosUpdatedAt, &c.ScheduleEnabled, &c.IgnoreCache, &c.IsWWDCWeek)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan app config: %w", err)
	}
	return &c, nil
}

func getSyncState(ctx context.Context, q querier) (repository.SyncState, error) {
	var st repository.SyncState
	err := q.QueryRowContext(ctx,
		`SELECT catalog_stamp, catalog_pending, schedule_pending, legacy_cleaned_up FROM sync_state WHERE id = 1`).
		Scan(&st.CatalogStamp, &st.CatalogPending, &st.SchedulePending, &st.LegacyCleanedUp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.SyncState{}, nil
		}
		return repository.SyncState{}, fmt.Errorf("scan sync state: %w", err)
	}
	return st, nil
}

const sessionColumns = `s.session_key, s.id, s.year, s.date_text, s.track, s.focus, s.title, s.summary,
	s.video_url, s.hd_video_url, s.slides_url, s.shelf_image_url,
	s.favorite, s.downloaded, s.progress, s.current_position,
	EXISTS (SELECT 1 FROM transcripts tr WHERE tr.session_key = s.session_key)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (repository.Session, error) {
	var s repository.Session
	err := sc.Scan(&s.Key, &s.ID, &s.Year, &s.Date, &s.Track, &s.Focus, &s.Title, &s.Summary,
		&s.VideoURL, &s.HDVideoURL, &s.SlidesURL, &s.ShelfImageURL,
		&s.UserState.Favorite, &s.UserState.Downloaded, &s.UserState.Progress, &s.UserState.CurrentPosition,
		&s.HasTranscript)
	return s, err
}

func getSession(ctx context.Context, q querier, d dialect, key string) (*repository.Session, error) {
	row := q.QueryRowContext(ctx, d.rebind(`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_key = ?`), key)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session %s: %w", key, err)
	}
	return &s, nil
}

func listSessions(ctx context.Context, q querier, d dialect, filter repository.SessionFilter) ([]repository.Session, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Years) > 0 {
		marks := make([]string, len(filter.Years))
		for i, y := range filter.Years {
			marks[i] = "?"
			args = append(args, y)
		}
		where = append(where, "s.year IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.MissingTranscript {
		where = append(where, "NOT EXISTS (SELECT 1 FROM transcripts tr WHERE tr.session_key = s.session_key)")
	}
	if filter.HDVideoURL != "" {
		where = append(where, "s.hd_video_url = ?")
		args = append(args, filter.HDVideoURL)
	}
	if filter.HDVideoURLContains != "" {
		where = append(where, d.containsFunc+"(s.hd_video_url, ?) > 0")
		args = append(args, filter.HDVideoURLContains)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions s`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.year DESC, s.id ASC"

	rows, err := q.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var list []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func getTrack(ctx context.Context, q querier, d dialect, name string) (*repository.Track, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT name, color, dark_color, light_bg_color, title_color FROM tracks WHERE name = ?`), name)
	var tr repository.Track
	if err := row.Scan(&tr.Name, &tr.Color, &tr.DarkColor, &tr.LightBGColor, &tr.TitleColor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan track %s: %w", name, err)
	}
	return &tr, nil
}

func getScheduledSession(ctx context.Context, q querier, d dialect, key string) (*repository.ScheduledSession, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT session_key, id, year, title, track_name, slot_type, room, starts_at, ends_at
		 FROM scheduled_sessions WHERE session_key = ?`), key)
	var (
		s                repository.ScheduledSession
		trackName        sql.NullString
		startsAt, endsAt int64
	)
	if err := row.Scan(&s.Key, &s.ID, &s.Year, &s.Title, &trackName, &s.Type, &s.Room, &startsAt, &endsAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan scheduled session %s: %w", key, err)
	}
	s.TrackName = trackName.String
	s.StartsAt = fromMillis(startsAt)
	s.EndsAt = fromMillis(endsAt)
	return &s, nil
}

func getTranscript(ctx context.Context, q querier, d dialect, sessionKey string) (*repository.Transcript, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT id, session_key, full_text FROM transcripts WHERE session_key = ?`), sessionKey)
	var tr repository.Transcript
	if err := row.Scan(&tr.ID, &tr.SessionKey, &tr.FullText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transcript for %s: %w", sessionKey, err)
	}

	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT line_index, timecode, body FROM transcript_lines WHERE transcript_id = ? ORDER BY line_index ASC`), tr.ID)
	if err != nil {
		return nil, fmt.Errorf("query transcript lines for %s: %w", sessionKey, err)
	}
	defer rows.Close()
	for rows.Next() {
		line := repository.TranscriptLine{TranscriptID: tr.ID}
		if err := rows.Scan(&line.Position, &line.Timecode, &line.Text); err != nil {
			return nil, fmt.Errorf("scan transcript line for %s: %w", sessionKey, err)
		}
		tr.Lines = append(tr.Lines, line)
	}
	return &tr, rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
