// Package db provides the optional Postgres audit log of list changes.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/meme-curator/memes"
)

// Connect opens a Postgres connection pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for the audit table.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meme_audit (
			id BIGSERIAL PRIMARY KEY,
			action TEXT NOT NULL,
			url TEXT NOT NULL,
			public_id TEXT,
			actor TEXT,
			platform TEXT,
			channel TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meme_audit_created ON meme_audit(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_meme_audit_public_id ON meme_audit(public_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// AuditLog writes and reads meme_audit rows.
type AuditLog struct{ DB *sql.DB }

// Record inserts one event. A zero At is stored as the current time.
func (a *AuditLog) Record(ctx context.Context, ev memes.AuditEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO meme_audit (action, url, public_id, actor, platform, channel, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.Action, ev.Entry.URL, ev.Entry.PublicID, ev.Actor, ev.Platform, ev.Channel, at)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]memes.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.DB.QueryContext(ctx,
		`SELECT action, url, COALESCE(public_id, ''), COALESCE(actor, ''), COALESCE(platform, ''), COALESCE(channel, ''), created_at
		 FROM meme_audit ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []memes.AuditEvent
	for rows.Next() {
		var ev memes.AuditEvent
		if err := rows.Scan(&ev.Action, &ev.Entry.URL, &ev.Entry.PublicID, &ev.Actor, &ev.Platform, &ev.Channel, &ev.At); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
