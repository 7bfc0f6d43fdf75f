package model

import "fmt"

type Category string

const (
	CategoryBilling   Category = "billing"
	CategoryTechnical Category = "technical"
	CategoryAccount   Category = "account"
	CategoryGeneral   Category = "general"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryBilling, CategoryTechnical, CategoryAccount, CategoryGeneral}

func (c Category) Valid() bool {
	switch c {
	case CategoryBilling, CategoryTechnical, CategoryAccount, CategoryGeneral:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

var Statuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// InvalidChoiceError is returned by the Parse functions for values outside
// the enumerated set.
type InvalidChoiceError struct {
	Value string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("%q is not a valid choice.", e.Value)
}

func ParseCategory(s string) (Category, error) {
	if c := Category(s); c.Valid() {
		return c, nil
	}
	return "", &InvalidChoiceError{Value: s}
}

func ParsePriority(s string) (Priority, error) {
	if p := Priority(s); p.Valid() {
		return p, nil
	}
	return "", &InvalidChoiceError{Value: s}
}

func ParseStatus(s string) (TicketStatus, error) {
	if st := TicketStatus(s); st.Valid() {
		return st, nil
	}
	return "", &InvalidChoiceError{Value: s}
}
