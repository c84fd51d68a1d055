package model

import (
	"time"

	"github.com/mailtmpl/internal/placeholder"
)

type TemplateType string

const (
	TypeWelcome               TemplateType = "welcome"
	TypeResetEmail            TemplateType = "reset_email"
	TypeEmailConfirmation     TemplateType = "email_confirmation"
	TypeOrderConfirmation     TemplateType = "order_confirmation"
	TypeFreeTrialRegistration TemplateType = "free_trial_registration"
	TypeTicketConfirmation    TemplateType = "ticket_confirmation"
	TypeTicketResponse        TemplateType = "ticket_response"
	TypeMeetingInvitation     TemplateType = "meeting_invitation"
	TypeMeetingReminder       TemplateType = "meeting_reminder"
	TypeMeetingCancellation   TemplateType = "meeting_cancellation"
	TypeNewsletter            TemplateType = "newsletter"
)

// Valid reports whether t is a known template type.
func (t TemplateType) Valid() bool {
	_, ok := placeholder.TypeInfoFor(string(t))
	return ok
}

type Category string

const (
	CategoryTransactional Category = "transactional"
	CategoryMarketing     Category = "marketing"
	CategorySystem        Category = "system"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTransactional, CategoryMarketing, CategorySystem:
		return true
	}
	return false
}

// FromAddressType selects which configured sender address a template uses.
type FromAddressType string

const (
	FromTransactional  FromAddressType = "transactional_email"
	FromMarketing      FromAddressType = "marketing_email"
	FromTransactional2 FromAddressType = "transactional_email_2"
	FromMarketing2     FromAddressType = "marketing_email_2"
)

func (f FromAddressType) Valid() bool {
	switch f {
	case FromTransactional, FromMarketing, FromTransactional2, FromMarketing2:
		return true
	}
	return false
}

// EmailTemplate is a stored template record. A nil OrganizationID marks a
// global template visible to every organization.
type EmailTemplate struct {
	ID              int64           `json:"id"`
	OrganizationID  *string         `json:"organization_id"`
	Type            TemplateType    `json:"type"`
	Subject         string          `json:"subject"`
	HTMLCode        string          `json:"html_code"`
	Name            *string         `json:"name"`
	Description     *string         `json:"description"`
	LogoImage       *string         `json:"email_main_logo_image"`
	FromAddressType FromAddressType `json:"from_email_address_type"`
	IsActive        bool            `json:"is_active"`
	IsDefault       bool            `json:"is_default"`
	Category        Category        `json:"category"`
	CreatedBy       *string         `json:"created_by"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Placeholders returns the subject and body as a placeholder template.
func (t *EmailTemplate) Placeholders() placeholder.Template {
	return placeholder.Template{Subject: t.Subject, HTMLBody: t.HTMLCode}
}

// VisibleTo reports whether an organization-scoped caller may see the template.
func (t *EmailTemplate) VisibleTo(organizationID string) bool {
	return t.OrganizationID != nil && *t.OrganizationID == organizationID
}

// Form is the editable part of a template.
type Form struct {
	OrganizationID  *string         `json:"organization_id"`
	Type            TemplateType    `json:"type"`
	Subject         string          `json:"subject"`
	HTMLCode        string          `json:"html_code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	LogoImage       string          `json:"email_main_logo_image"`
	FromAddressType FromAddressType `json:"from_email_address_type"`
	IsActive        bool            `json:"is_active"`
	Category        Category        `json:"category"`
}

// EmptyForm returns the starting point for a new template.
func EmptyForm(organizationID *string) Form {
	return Form{
		OrganizationID:  organizationID,
		Type:            TypeWelcome,
		FromAddressType: FromTransactional,
		IsActive:        true,
		Category:        CategoryTransactional,
	}
}

// FormFromTemplate copies the editable fields of t.
func FormFromTemplate(t *EmailTemplate) Form {
	return Form{
		OrganizationID:  t.OrganizationID,
		Type:            t.Type,
		Subject:         t.Subject,
		HTMLCode:        t.HTMLCode,
		Name:            deref(t.Name),
		Description:     deref(t.Description),
		LogoImage:       deref(t.LogoImage),
		FromAddressType: t.FromAddressType,
		IsActive:        t.IsActive,
		Category:        t.Category,
	}
}

// Apply writes the form onto t. Empty optional strings are stored as NULL.
func (f Form) Apply(t *EmailTemplate) {
	t.OrganizationID = f.OrganizationID
	t.Type = f.Type
	t.Subject = f.Subject
	t.HTMLCode = f.HTMLCode
	t.Name = nullable(f.Name)
	t.Description = nullable(f.Description)
	t.LogoImage = nullable(f.LogoImage)
	t.FromAddressType = f.FromAddressType
	t.IsActive = f.IsActive
	t.Category = f.Category
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
