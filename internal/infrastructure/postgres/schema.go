package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements creates the dashboard tables and the monthly views procedure.
// %[1]s is the quoted schema name.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS %[1]s`,
	`CREATE TABLE IF NOT EXISTS %[1]s.notifications (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_created_idx
		ON %[1]s.notifications (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sender_id UUID,
		receiver_id UUID NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		read_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_receiver_unread_idx
		ON %[1]s.messages (receiver_id) WHERE read_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS %[1]s.user_requests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL UNIQUE,
		youtube_links JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.channel_views (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		day DATE NOT NULL,
		views BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS channel_views_user_day_idx
		ON %[1]s.channel_views (user_id, day)`,
	`CREATE OR REPLACE FUNCTION %[1]s.get_total_monthly_views(p_user_id UUID, p_month DATE)
	RETURNS BIGINT
	LANGUAGE sql STABLE
	AS $$
		SELECT COALESCE(SUM(views), 0)::BIGINT
		FROM %[1]s.channel_views
		WHERE user_id = p_user_id
		  AND date_trunc('month', day) = date_trunc('month', p_month)
	$$`,
}

// Migrate creates the dashboard schema objects that do not exist yet.
// Hosted projects already have them; self-managed databases and tests call this on start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}
	quoted := pgx.Identifier{schema}.Sanitize()

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, fmt.Sprintf(stmt, quoted)); err != nil {
			return HandlePgError(fmt.Errorf("migrate: %w", err), schema)
		}
	}
	return nil
}
