package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/psds-microservice/support-ticket-service/internal/model"
)

const (
	msgRequired     = "This field is required."
	msgBlank        = "This field may not be blank."
	msgNull         = "This field may not be null."
	msgNotString    = "Not a valid string."
	msgTitleTooLong = "Ensure this field has no more than %d characters."
)

// fieldErrors is the 400 body: field name -> messages.
type fieldErrors map[string][]string

func (e fieldErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

// ticketFields holds the client-writable ticket fields found in a body.
// nil means the field was absent or invalid.
type ticketFields struct {
	Title       *string
	Description *string
	Category    *model.Category
	Priority    *model.Priority
	Status      *model.TicketStatus
}

// changes returns the column -> value set for a partial update.
func (f ticketFields) changes() map[string]interface{} {
	out := make(map[string]interface{})
	if f.Title != nil {
		out["title"] = *f.Title
	}
	if f.Description != nil {
		out["description"] = *f.Description
	}
	if f.Category != nil {
		out["category"] = string(*f.Category)
	}
	if f.Priority != nil {
		out["priority"] = string(*f.Priority)
	}
	if f.Status != nil {
		out["status"] = string(*f.Status)
	}
	return out
}

// decodeTicketFields validates the writable fields of a ticket body. Unknown
// keys (id, created_at, anything else) are ignored. With partial=false the
// create rules apply: title, description, category and priority are required.
func decodeTicketFields(body map[string]json.RawMessage, partial bool) (ticketFields, fieldErrors) {
	var f ticketFields
	errs := fieldErrors{}

	f.Title = textField(body, "title", model.TitleMaxLength, partial, errs)
	f.Description = textField(body, "description", 0, partial, errs)

	if v, ok := choiceField(body, "category", partial, errs); ok {
		c, err := model.ParseCategory(v)
		if err != nil {
			errs.add("category", err.Error())
		} else {
			f.Category = &c
		}
	}
	if v, ok := choiceField(body, "priority", partial, errs); ok {
		p, err := model.ParsePriority(v)
		if err != nil {
			errs.add("priority", err.Error())
		} else {
			f.Priority = &p
		}
	}
	// status не обязателен даже при создании
	if v, ok := choiceField(body, "status", true, errs); ok {
		s, err := model.ParseStatus(v)
		if err != nil {
			errs.add("status", err.Error())
		} else {
			f.Status = &s
		}
	}
	return f, errs
}

// present reports whether the field is set. Absent fields are an error only
// when required; an explicit null is always rejected.
func present(body map[string]json.RawMessage, name string, optional bool, errs fieldErrors) (json.RawMessage, bool) {
	raw, ok := body[name]
	switch {
	case !ok:
		if !optional {
			errs.add(name, msgRequired)
		}
		return nil, false
	case bytes.Equal(bytes.TrimSpace(raw), []byte("null")):
		errs.add(name, msgNull)
		return nil, false
	}
	return raw, true
}

// textField trims the value; maxLen 0 means unlimited.
func textField(body map[string]json.RawMessage, name string, maxLen int, optional bool, errs fieldErrors) *string {
	raw, ok := present(body, name, optional, errs)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		errs.add(name, msgNotString)
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		errs.add(name, msgBlank)
		return nil
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		errs.add(name, fmt.Sprintf(msgTitleTooLong, maxLen))
		return nil
	}
	return &s
}

func choiceField(body map[string]json.RawMessage, name string, optional bool, errs fieldErrors) (string, bool) {
	raw, ok := present(body, name, optional, errs)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		errs.add(name, (&model.InvalidChoiceError{Value: string(bytes.TrimSpace(raw))}).Error())
		return "", false
	}
	return s, true
}
