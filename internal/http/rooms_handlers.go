package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"draw-new/internal/store"
	"draw-new/pkg/auth"
)

// RoomStore is the room directory.
type RoomStore interface {
	CreateRoom(ctx context.Context, slug, adminID string) (store.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (store.Room, error)
}

// HistoryReader reads a room's persisted events for replay on load.
type HistoryReader interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]store.Event, error)
}

type RoomsAPI struct {
	Rooms   RoomStore
	History HistoryReader
	Limit   int
	Log     *slog.Logger
}

type createRoomReq struct {
	Name string `json:"name"`
}

type createRoomResp struct {
	RoomID string `json:"roomId"`
	Slug   string `json:"slug"`
}

type historyResp struct {
	Messages []store.Event `json:"messages"`
}

// Create registers a new room owned by the authenticated user.
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}

	room, err := a.Rooms.CreateRoom(r.Context(), req.Name, auth.UserID(r.Context()))
	switch {
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "room already exists", http.StatusConflict)
		return
	case err != nil:
		a.Log.Error("room.create", "err", err)
		http.Error(w, "error creating room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResp{RoomID: room.ID, Slug: room.Slug})
}

// Get resolves a slug to its room.
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	room, err := a.Rooms.GetRoomBySlug(r.Context(), r.PathValue("slug"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "no room found", http.StatusNotFound)
		return
	case err != nil:
		a.Log.Error("room.get", "err", err)
		http.Error(w, "error fetching room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// History returns the room's most recent events, oldest first.
func (a *RoomsAPI) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	evs, err := a.History.ListByRoom(r.Context(), id, a.Limit)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "no room found", http.StatusNotFound)
		return
	case err != nil:
		a.Log.Error("room.history", "room", id, "err", err)
		http.Error(w, "error fetching room", http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []store.Event{}
	}
	writeJSON(w, http.StatusOK, historyResp{Messages: evs})
}
