package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// The schema sticks to types and clauses understood by both SQLite and PostgreSQL.
var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS app_config (
		id INTEGER PRIMARY KEY,
		videos_url TEXT NOT NULL,
		sessions_url TEXT NOT NULL,
		live_url TEXT NOT NULL DEFAULT '',
		videos_updated_at TEXT NOT NULL DEFAULT '',
		schedule_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		ignore_cache BOOLEAN NOT NULL DEFAULT FALSE,
		is_wwdc_week BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY,
		catalog_stamp TEXT NOT NULL DEFAULT '',
		catalog_pending BOOLEAN NOT NULL DEFAULT FALSE,
		schedule_pending BOOLEAN NOT NULL DEFAULT FALSE,
		legacy_cleaned_up BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		date_text TEXT NOT NULL DEFAULT '',
		track TEXT NOT NULL DEFAULT '',
		focus TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		hd_video_url TEXT NOT NULL DEFAULT '',
		slides_url TEXT NOT NULL DEFAULT '',
		shelf_image_url TEXT NOT NULL DEFAULT '',
		favorite BOOLEAN NOT NULL DEFAULT FALSE,
		downloaded BOOLEAN NOT NULL DEFAULT FALSE,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_position DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_listing ON sessions (year DESC, id ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_title ON sessions (title)`,
	`CREATE TABLE IF NOT EXISTS tracks (
		name TEXT PRIMARY KEY,
		color TEXT NOT NULL DEFAULT '',
		dark_color TEXT NOT NULL DEFAULT '',
		light_bg_color TEXT NOT NULL DEFAULT '',
		title_color TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_sessions (
		session_key TEXT PRIMARY KEY,
		id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		track_name TEXT REFERENCES tracks(name),
		slot_type TEXT NOT NULL DEFAULT '',
		room TEXT NOT NULL DEFAULT '',
		starts_at BIGINT NOT NULL,
		ends_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		session_key TEXT NOT NULL UNIQUE REFERENCES sessions(session_key) ON DELETE CASCADE,
		full_text TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transcript_lines (
		transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
		line_index INTEGER NOT NULL,
		timecode DOUBLE PRECISION NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (transcript_id, line_index)
	)`,
}

func RunMigration(ctx context.Context, db *sql.DB) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
