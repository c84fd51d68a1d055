package model

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FieldErrors maps a form field (JSON name) to a human readable message.
type FieldErrors map[string]string

func (fe FieldErrors) Valid() bool { return len(fe) == 0 }

const (
	subjectMinLen = 3
	subjectMaxLen = 200
	htmlMinLen    = 10
	nameMinLen    = 3
)

// Validate checks a form and returns every problem found.
func Validate(f Form) FieldErrors {
	errs := FieldErrors{}

	subjectLen := utf8.RuneCountInString(f.Subject)
	switch {
	case strings.TrimSpace(f.Subject) == "":
		errs["subject"] = "Subject is required"
	case subjectLen < subjectMinLen:
		errs["subject"] = "Subject must be at least 3 characters"
	case subjectLen >= subjectMaxLen:
		errs["subject"] = "Subject must be less than 200 characters"
	}

	switch {
	case strings.TrimSpace(f.HTMLCode) == "":
		errs["html_code"] = "HTML code is required"
	case utf8.RuneCountInString(f.HTMLCode) < htmlMinLen:
		errs["html_code"] = "HTML code must be at least 10 characters"
	}

	if f.Name != "" && utf8.RuneCountInString(f.Name) < nameMinLen {
		errs["name"] = "Name must be at least 3 characters if provided"
	}

	if !f.Type.Valid() {
		errs["type"] = "Unknown template type"
	}
	if !f.Category.Valid() {
		errs["category"] = "Unknown category"
	}
	if !f.FromAddressType.Valid() {
		errs["from_email_address_type"] = "Unknown sender address type"
	}

	return errs
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail performs the same loose address check the admin UI uses.
func IsValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}
