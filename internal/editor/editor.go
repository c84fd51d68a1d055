// Package editor holds the template management screen as plain data: a
// State value, the Actions that move it, and the Effects a driver has to
// carry out against the API.
package editor

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/placeholder"
)

type Tab string

const (
	TabTemplates Tab = "templates"
	TabAdd       Tab = "add"
	TabEdit      Tab = "edit"
)

type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

const (
	msgCreated     = "Template created successfully"
	msgUpdated     = "Template updated successfully"
	msgDeleted     = "Template deleted successfully"
	msgActivated   = "Template activated successfully"
	msgDeactivated = "Template deactivated successfully"
	msgFixErrors   = "Please fix validation errors"
)

// State is the whole screen. Reduce never mutates the maps or slices of the
// state it is given, so old values stay valid.
type State struct {
	Tab       Tab
	ModalOpen bool
	Mode      Mode

	// OrganizationID seeds the form of new templates.
	OrganizationID *string

	Form    model.Form
	EditID  int64
	Errors  model.FieldErrors
	Touched map[string]bool
	Dirty   bool
	Saving  bool
	Loading bool

	Message string
	Error   string

	Templates []*model.EmailTemplate
}

// New returns the initial state for a user of organizationID.
func New(organizationID *string) State {
	return State{
		Tab:            TabTemplates,
		Mode:           ModeAdd,
		OrganizationID: organizationID,
		Form:           model.EmptyForm(organizationID),
		Errors:         model.FieldErrors{},
		Touched:        map[string]bool{},
	}
}

// Visible returns the loaded templates narrowed by f and ordered by s.
func (s State) Visible(f model.Filter, srt model.Sort) []*model.EmailTemplate {
	return model.Apply(s.Templates, f, srt)
}

// Action is something that happened: a user gesture or an effect result.
type Action interface{ action() }

type (
	OpenAdd     struct{}
	SelectEdit  struct{ Template model.EmailTemplate }
	ChangeField struct{ Field, Value string }
	BlurField   struct{ Field string }

	// RequestClose closes the modal, or asks for confirmation first when
	// the form has unsaved changes. Both are ignored while a request is in
	// flight.
	RequestClose struct{}
	ConfirmClose struct{}

	Save          struct{}
	SaveSucceeded struct{ Template model.EmailTemplate }
	SaveFailed    struct {
		Err    string
		Fields model.FieldErrors
	}

	Toggle struct {
		ID     int64
		Active bool
	}
	Toggled struct{ Template model.EmailTemplate }
	Delete  struct{ ID int64 }
	Deleted struct{ ID int64 }

	Refresh struct{}
	Loaded  struct{ Templates []*model.EmailTemplate }

	// Failed reports an effect that did not complete.
	Failed         struct{ Err string }
	DismissMessage struct{}
)

func (OpenAdd) action()        {}
func (SelectEdit) action()     {}
func (ChangeField) action()    {}
func (BlurField) action()      {}
func (RequestClose) action()   {}
func (ConfirmClose) action()   {}
func (Save) action()           {}
func (SaveSucceeded) action()  {}
func (SaveFailed) action()     {}
func (Toggle) action()         {}
func (Toggled) action()        {}
func (Delete) action()         {}
func (Deleted) action()        {}
func (Refresh) action()        {}
func (Loaded) action()         {}
func (Failed) action()         {}
func (DismissMessage) action() {}

// Effect is work the reducer asks the driver to perform.
type Effect interface{ effect() }

type (
	CreateTemplate struct{ Form model.Form }
	UpdateTemplate struct {
		ID   int64
		Form model.Form
	}
	DeleteTemplate struct{ ID int64 }
	ToggleActive   struct {
		ID     int64
		Active bool
	}
	LoadTemplates struct{}

	// ConfirmDiscard asks the user whether unsaved changes may be dropped.
	// A yes is reported back as ConfirmClose.
	ConfirmDiscard struct{}
)

func (CreateTemplate) effect() {}
func (UpdateTemplate) effect() {}
func (DeleteTemplate) effect() {}
func (ToggleActive) effect()   {}
func (LoadTemplates) effect()  {}
func (ConfirmDiscard) effect() {}

// Reduce applies a to s and returns the next state plus the effects to run.
func Reduce(s State, a Action) (State, []Effect) {
	switch a := a.(type) {
	case OpenAdd:
		s = s.resetForm()
		s.Mode = ModeAdd
		s.ModalOpen = true
		s.Tab = TabAdd
		return s, nil

	case SelectEdit:
		s = s.resetForm()
		s.Form = model.FormFromTemplate(&a.Template)
		s.EditID = a.Template.ID
		s.Mode = ModeEdit
		s.ModalOpen = true
		s.Tab = TabEdit
		return s, nil

	case ChangeField:
		if !s.ModalOpen {
			return s, nil
		}
		form, err := setField(s.Form, s.Mode, a.Field, a.Value)
		if err != nil {
			s.Error = err.Error()
			return s, nil
		}
		s.Form = form
		s.Dirty = true
		if _, ok := s.Errors[a.Field]; ok {
			s.Errors = maps.Clone(s.Errors)
			delete(s.Errors, a.Field)
		}
		return s, nil

	case BlurField:
		s.Touched = maps.Clone(s.Touched)
		s.Touched[a.Field] = true
		s.Errors = maps.Clone(s.Errors)
		if msg, ok := model.Validate(s.Form)[a.Field]; ok {
			s.Errors[a.Field] = msg
		} else {
			delete(s.Errors, a.Field)
		}
		return s, nil

	case RequestClose:
		if s.Saving {
			return s, nil
		}
		if s.Dirty {
			return s, []Effect{ConfirmDiscard{}}
		}
		return s.close(), nil

	case ConfirmClose:
		// The pending save result needs the mode it was started in.
		if s.Saving {
			return s, nil
		}
		return s.close(), nil

	case Save:
		if s.Saving || !s.ModalOpen {
			return s, nil
		}
		if errs := model.Validate(s.Form); !errs.Valid() {
			s.Errors = errs
			s.Error = msgFixErrors
			return s, nil
		}
		s.Saving = true
		s.Error = ""
		if s.Mode == ModeEdit {
			return s, []Effect{UpdateTemplate{ID: s.EditID, Form: s.Form}}
		}
		return s, []Effect{CreateTemplate{Form: s.Form}}

	case SaveSucceeded:
		t := a.Template
		if s.Mode == ModeEdit {
			s.Templates = replaceTemplate(s.Templates, &t)
			s.Message = msgUpdated
		} else {
			s.Templates = append([]*model.EmailTemplate{&t}, s.Templates...)
			s.Message = msgCreated
		}
		s.Saving = false
		s.Error = ""
		return s.close(), nil

	case SaveFailed:
		s.Saving = false
		s.Error = a.Err
		if len(a.Fields) > 0 {
			s.Errors = maps.Clone(a.Fields)
		}
		return s, nil

	case Toggle:
		return s, []Effect{ToggleActive{ID: a.ID, Active: !a.Active}}

	case Toggled:
		t := a.Template
		s.Templates = replaceTemplate(s.Templates, &t)
		if t.IsActive {
			s.Message = msgActivated
		} else {
			s.Message = msgDeactivated
		}
		s.Error = ""
		return s, nil

	case Delete:
		if s.Saving {
			return s, nil
		}
		s.Saving = true
		return s, []Effect{DeleteTemplate{ID: a.ID}}

	case Deleted:
		s.Templates = slices.DeleteFunc(slices.Clone(s.Templates), func(t *model.EmailTemplate) bool {
			return t.ID == a.ID
		})
		s.Saving = false
		s.Message = msgDeleted
		s.Error = ""
		if s.Mode == ModeEdit && s.EditID == a.ID {
			s = s.close()
		}
		return s, nil

	case Refresh:
		s.Loading = true
		return s, []Effect{LoadTemplates{}}

	case Loaded:
		s.Loading = false
		s.Templates = slices.Clone(a.Templates)
		return s, nil

	case Failed:
		s.Saving = false
		s.Loading = false
		s.Error = a.Err
		return s, nil

	case DismissMessage:
		s.Message = ""
		s.Error = ""
		return s, nil
	}
	return s, nil
}

func (s State) resetForm() State {
	s.Form = model.EmptyForm(s.OrganizationID)
	s.EditID = 0
	s.Errors = model.FieldErrors{}
	s.Touched = map[string]bool{}
	s.Dirty = false
	return s
}

func (s State) close() State {
	s = s.resetForm()
	s.Mode = ModeAdd
	s.ModalOpen = false
	s.Tab = TabTemplates
	return s
}

func replaceTemplate(list []*model.EmailTemplate, t *model.EmailTemplate) []*model.EmailTemplate {
	out := slices.Clone(list)
	for i, cur := range out {
		if cur.ID == t.ID {
			out[i] = t
			return out
		}
	}
	return append(out, t)
}

// setField writes one form field by its JSON name. Picking a type for a new
// template with no subject yet fills in the type's default subject.
func setField(f model.Form, mode Mode, field, value string) (model.Form, error) {
	switch field {
	case "type":
		f.Type = model.TemplateType(value)
		if mode == ModeAdd && f.Subject == "" {
			f.Subject = placeholder.DefaultSubject(value)
		}
	case "subject":
		f.Subject = value
	case "html_code":
		f.HTMLCode = value
	case "name":
		f.Name = value
	case "description":
		f.Description = value
	case "email_main_logo_image":
		f.LogoImage = value
	case "from_email_address_type":
		f.FromAddressType = model.FromAddressType(value)
	case "category":
		f.Category = model.Category(value)
	case "is_active":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return f, fmt.Errorf("is_active: %q is not a boolean", value)
		}
		f.IsActive = b
	default:
		return f, fmt.Errorf("unknown field %q", field)
	}
	return f, nil
}
