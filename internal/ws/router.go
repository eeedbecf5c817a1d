package ws

import (
	"context"
	"errors"

	"draw-new/pkg/metrics"
)

// publisher is the chat path the router hands valid frames to.
type publisher interface {
	Publish(ctx context.Context, c *Conn, roomID, message string) error
}

// Router dispatches one inbound frame at a time for a connection. Errors are
// logged and returned but never end the connection.
type Router struct {
	reg *Registry
	pub publisher
}

func NewRouter(reg *Registry, pub publisher) *Router {
	return &Router{reg: reg, pub: pub}
}

// Dispatch parses raw and applies it on behalf of c.
func (rt *Router) Dispatch(ctx context.Context, c *Conn, raw []byte) error {
	f, err := ParseFrame(raw)
	if err != nil {
		rt.observe(c, "unknown", Frame{}, err)
		return err
	}

	switch f.Type {
	case TypeJoinRoom:
		if rt.reg.Join(f.RoomID, c.ID()) {
			c.log.Debug("ws.join", "room", f.RoomID)
		}
	case TypeLeaveRoom:
		if rt.reg.Leave(f.RoomID, c.ID()) {
			c.log.Debug("ws.leave", "room", f.RoomID)
		}
	case TypeChat:
		err = rt.pub.Publish(ctx, c, f.RoomID, f.Message)
	}
	metrics.Rooms.Set(float64(rt.reg.RoomCount()))
	rt.observe(c, f.Type, f, err)
	return err
}

// observe logs and counts a dispatch outcome at the level its class calls for.
func (rt *Router) observe(c *Conn, typ string, f Frame, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedFrame):
		result = "malformed"
		c.log.Warn("ws.frame.drop", "reason", result, "err", err)
	case errors.Is(err, ErrUnknownFrame):
		result = "unknown"
		c.log.Warn("ws.frame.drop", "reason", result, "err", err)
	case errors.Is(err, ErrNotJoined):
		result = "not_joined"
		c.log.Warn("ws.publish.denied", "room", f.RoomID)
	case errors.Is(err, ErrPersist):
		result = "persist_error"
		c.log.Error("ws.publish.persist", "room", f.RoomID, "err", err)
	default:
		result = "error"
		c.log.Error("ws.frame.error", "type", typ, "err", err)
	}
	metrics.Frames.WithLabelValues(typ, result).Inc()
}
