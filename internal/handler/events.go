package handler

import (
	"net/http"

	"github.com/mailtmpl/internal/events"
	appmw "github.com/mailtmpl/internal/middleware"
)

type eventStreamer interface {
	ServeWebSocket(w http.ResponseWriter, r *http.Request, allow func(events.Event) bool)
	ServeSSE(w http.ResponseWriter, r *http.Request, allow func(events.Event) bool)
}

// EventsHandler streams template change events to the admin UI.
type EventsHandler struct {
	hub eventStreamer
}

func NewEventsHandler(hub eventStreamer) *EventsHandler {
	return &EventsHandler{hub: hub}
}

func (h *EventsHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWebSocket(w, r, scopeFilter(r))
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeSSE(w, r, scopeFilter(r))
}

// scopeFilter limits organization admins to their own organization's events.
func scopeFilter(r *http.Request) func(events.Event) bool {
	org, scoped := appmw.ScopeFromContext(r.Context())
	if !scoped {
		return func(events.Event) bool { return true }
	}
	return func(e events.Event) bool { return e.VisibleTo(org) }
}
