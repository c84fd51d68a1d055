// Package events broadcasts template changes to connected admin sessions.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mailtmpl/internal/model"
)

type Type string

const (
	TemplateCreated  Type = "template.created"
	TemplateUpdated  Type = "template.updated"
	TemplateDeleted  Type = "template.deleted"
	TemplateToggled  Type = "template.toggled"
	TemplateTestSent Type = "template.test_sent"
)

type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	TemplateID     int64     `json:"template_id"`
	OrganizationID *string   `json:"organization_id"`
	Actor          string    `json:"actor"`
	At             time.Time `json:"at"`
}

// New describes a change to t made by actor.
func New(typ Type, t *model.EmailTemplate, actor string) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		TemplateID:     t.ID,
		OrganizationID: t.OrganizationID,
		Actor:          actor,
		At:             time.Now().UTC(),
	}
}

// VisibleTo reports whether a caller scoped to organizationID may see e.
func (e Event) VisibleTo(organizationID string) bool {
	return e.OrganizationID != nil && *e.OrganizationID == organizationID
}

// Publisher accepts events for delivery to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
