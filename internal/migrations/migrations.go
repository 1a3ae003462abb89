package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var (
	ErrTooManyMigrations = fmt.Errorf("database has more migrations than this program knows about")
	ErrMigrationMismatch = fmt.Errorf("database migration does not match this program")
)

// Statements is the ordered schema history. Only ever append to it.
var Statements = []string{
	`create table jobs (
  id integer primary key autoincrement,
  created_at datetime not null,
  queue_name text not null,
  payload text not null,
  run_after datetime not null,
  failure_delay integer not null default 0,
  attempts_remaining integer not null default 0,
  reserved_at datetime,
  reserved_until datetime,
  finished_at datetime,
  error_messages text not null default '[]',
  output_messages text not null default '[]'
)`,
	`create index jobs_pending on jobs (queue_name, finished_at, run_after)`,
	`create table videos (
  id integer primary key autoincrement,
  created_at datetime not null,
  updated_at datetime not null,
  version integer not null default 0,
  url text not null,
  title text not null default '',
  description text not null default '',
  duration_seconds integer,
  thumbnail_url text not null default '',
  channel_name text not null default '',
  status text not null default 'pending',
  error_message text,
  video_path text,
  audio_path text,
  transcription_path text
)`,
	`create index videos_status on videos (status)`,
	`create index videos_created_at on videos (created_at)`,
	`create table transcriptions (
  id integer primary key autoincrement,
  created_at datetime not null,
  video_id integer not null references videos (id) on delete cascade,
  run_id text not null default '',
  engine text not null,
  model_name text not null default '',
  language text not null default '',
  raw_text text not null default '',
  markdown_path text not null default '',
  duration_seconds integer not null default 0
)`,
	`create index transcriptions_video_id on transcriptions (video_id, created_at)`,
	`create table playlists (
  id integer primary key autoincrement,
  created_at datetime not null,
  updated_at datetime not null,
  name text not null,
  description text not null default ''
)`,
	`create table playlist_videos (
  id integer primary key autoincrement,
  added_at datetime not null,
  playlist_id integer not null references playlists (id) on delete cascade,
  video_id integer not null references videos (id) on delete cascade,
  position integer not null default 0,
  unique (playlist_id, video_id)
)`,
	`create table platform_credentials (
  id integer primary key autoincrement,
  created_at datetime not null,
  updated_at datetime not null,
  platform_name text not null,
  platform_url text not null,
  auth_type text not null,
  username text not null default '',
  password text not null default '',
  cookies_path text
)`,
}

// Migrate applies every statement the database hasn't seen yet, in order,
// recording each one. A database with a history that diverges from
// Statements is refused.
func Migrate(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, Statements)
}

func migrate(ctx context.Context, db *sql.DB, wanted []string) error {
	if _, err := db.ExecContext(ctx, "create table if not exists migrations (id integer primary key autoincrement, query text not null)"); err != nil {
		return fmt.Errorf("migrations.Migrate: could not create migrations table: %w", err)
	}

	existing, err := readExisting(ctx, db)
	if err != nil {
		return fmt.Errorf("migrations.Migrate: %w", err)
	}

	missing, err := compare(wanted, existing)
	if err != nil {
		return fmt.Errorf("migrations.Migrate: %w", err)
	}

	for i, query := range missing {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrations.Migrate: could not open transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrations.Migrate: could not apply migration %d: %w", len(existing)+i+1, err)
		}

		if _, err := tx.ExecContext(ctx, "insert into migrations (query) values (?)", query); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrations.Migrate: could not record migration %d: %w", len(existing)+i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrations.Migrate: could not commit migration %d: %w", len(existing)+i+1, err)
		}
	}

	return nil
}

func readExisting(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "select query from migrations order by id")
	if err != nil {
		return nil, fmt.Errorf("readExisting: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, fmt.Errorf("readExisting: %w", err)
		}
		existing = append(existing, query)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readExisting: %w", err)
	}

	return existing, nil
}

func compare(wanted, existing []string) ([]string, error) {
	if len(wanted) < len(existing) {
		return nil, fmt.Errorf("compare: %d known, %d applied: %w", len(wanted), len(existing), ErrTooManyMigrations)
	}

	for i := range existing {
		if wanted[i] != existing[i] {
			return nil, fmt.Errorf("compare: migration %d: %w", i+1, ErrMigrationMismatch)
		}
	}

	return wanted[len(existing):], nil
}
