package syncengine

import (
	"errors"
	"sort"
	"strings"
)

// Category names one kind of mirrored data.
type Category string

const (
	CategoryProfile          Category = "profile"
	CategoryStudents         Category = "students"
	CategoryClasses          Category = "classes"
	CategoryClassMembers     Category = "class_members"
	CategoryMessages         Category = "messages"
	CategoryEvents           Category = "events"
	CategoryAnnotations      Category = "annotations"
	CategoryAttendance       Category = "attendance"
	CategoryJustifications   Category = "justifications"
	CategoryMaterialRequests Category = "material_requests"
)

// AllCategories lists every category in sync order.
var AllCategories = []Category{
	CategoryProfile,
	CategoryStudents,
	CategoryClasses,
	CategoryMessages,
	CategoryEvents,
	CategoryAnnotations,
	CategoryAttendance,
	CategoryJustifications,
	CategoryMaterialRequests,
	CategoryClassMembers,
}

// PartialFailure reports the categories that failed during one SyncAll.
// Categories not listed synced successfully.
type PartialFailure struct {
	UID      string
	Failures map[Category]error
}

func (p *PartialFailure) Error() string {
	var b strings.Builder
	b.WriteString("sync ")
	b.WriteString(p.UID)
	b.WriteString(": failed categories: ")
	for i, c := range p.Categories() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(c))
		b.WriteString(" (")
		b.WriteString(p.Failures[c].Error())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes every category cause to errors.Is and errors.As.
func (p *PartialFailure) Unwrap() []error {
	out := make([]error, 0, len(p.Failures))
	for _, c := range p.Categories() {
		out = append(out, p.Failures[c])
	}
	return out
}

// Failed reports whether c is among the failed categories.
func (p *PartialFailure) Failed(c Category) bool {
	_, ok := p.Failures[c]
	return ok
}

// Categories returns the failed categories in a stable order.
func (p *PartialFailure) Categories() []Category {
	out := make([]Category, 0, len(p.Failures))
	for c := range p.Failures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names is Categories as plain strings.
func (p *PartialFailure) Names() []string {
	cats := p.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// AsPartialFailure extracts a *PartialFailure from err.
func AsPartialFailure(err error) (*PartialFailure, bool) {
	var pf *PartialFailure
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
