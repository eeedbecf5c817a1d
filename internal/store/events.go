package store

import (
	"context"
	"fmt"
)

// Append records one event in the room's log and returns it with its
// sequence id and timestamp filled in.
func (p *Postgres) Append(ctx context.Context, ev Event) (Event, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO chats (room_id, user_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, ev.RoomID, ev.UserID, ev.Message)

	if err := row.Scan(&ev.ID, &ev.CreatedAt); err != nil {
		switch pgCode(err) {
		case codeForeignKeyViolation, codeInvalidText:
			return Event{}, fmt.Errorf("room %q: %w", ev.RoomID, ErrUnknownRoom)
		}
		return Event{}, err
	}
	return ev, nil
}

// ListByRoom returns the latest limit events of a room, oldest first, so a
// client can replay them in draw order.
func (p *Postgres) ListByRoom(ctx context.Context, roomID string, limit int) ([]Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id::text, user_id::text, message, created_at
		FROM (
			SELECT id, room_id, user_id, message, created_at
			FROM chats
			WHERE room_id = $1
			ORDER BY id DESC
			LIMIT $2
		) latest
		ORDER BY id ASC
	`, roomID, limit)
	if err != nil {
		if pgCode(err) == codeInvalidText {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RoomID, &e.UserID, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		if pgCode(err) == codeInvalidText {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}
