package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// CreateRoom registers a room slug owned by adminID.
func (p *Postgres) CreateRoom(ctx context.Context, slug, adminID string) (Room, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Room{}, errors.New("empty slug")
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO rooms (slug, admin_id)
		VALUES ($1, $2)
		RETURNING id::text, slug, admin_id::text, created_at
	`, slug, adminID)

	var r Room
	if err := row.Scan(&r.ID, &r.Slug, &r.AdminID, &r.CreatedAt); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return Room{}, ErrConflict
		}
		return Room{}, err
	}
	p.log.Info("room.created", "id", r.ID, "slug", r.Slug)
	return r, nil
}

// GetRoomBySlug looks a room up by its human-facing slug.
func (p *Postgres) GetRoomBySlug(ctx context.Context, slug string) (Room, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id::text, slug, admin_id::text, created_at
		FROM rooms
		WHERE slug = $1
	`, slug)

	var r Room
	if err := row.Scan(&r.ID, &r.Slug, &r.AdminID, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	return r, nil
}
