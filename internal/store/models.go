package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownRoom is returned by Append when the room is not in the directory.
	ErrUnknownRoom = errors.New("unknown room")
)

type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Room is a room directory entry; the broadcast engine only ever sees its ID.
type Room struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	AdminID   string    `json:"adminId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is one persisted shape update. Message is opaque.
type Event struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
