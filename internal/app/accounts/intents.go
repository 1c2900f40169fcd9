package accounts

import (
	"strings"
	"time"

	"github.com/oriundostartup/libreta/internal/app/mirror"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
)

// Roles recorded on profiles and in the audit log.
const (
	RoleTeacher = "teacher"
	RoleParent  = "parent"
)

// AccountForm is what every registration carries.
type AccountForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Intent is the role-specific part of a registration. The implementations
// are TeacherIntent and ParentIntent.
type Intent interface {
	Role() string
	validate() error
}

// ClassForm describes a class a teacher opens while registering.
type ClassForm struct {
	Name   string `json:"name"`
	Grade  string `json:"grade,omitempty"`
	School string `json:"school,omitempty"`
}

// TeacherIntent registers a teacher, optionally with a first class.
type TeacherIntent struct {
	FirstClass *ClassForm
}

func (TeacherIntent) Role() string { return RoleTeacher }

func (t TeacherIntent) validate() error {
	if t.FirstClass != nil && normalize.Name(t.FirstClass.Name) == "" {
		return accounterr.Invalid("class.name", "class name is required")
	}
	return nil
}

// StudentForm describes the dependent a parent registers.
type StudentForm struct {
	FullName  string     `json:"full_name"`
	RUT       string     `json:"rut,omitempty"`
	Grade     string     `json:"grade,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// ParentIntent registers a parent. When Student is set the student is
// created and enrolled in the class JoinCode names.
type ParentIntent struct {
	Student  *StudentForm
	JoinCode string
}

func (ParentIntent) Role() string { return RoleParent }

func (p ParentIntent) validate() error {
	if p.Student == nil {
		return nil
	}
	if normalize.Name(p.Student.FullName) == "" {
		return accounterr.Invalid("student.full_name", "student name is required")
	}
	if normalize.JoinCode(p.JoinCode) == "" {
		return accounterr.Invalid("join_code", "join code is required")
	}
	return nil
}

// Registration is one call to Flow.Register. External, when set, is a
// federated credential linked to the new identity after it is created.
type Registration struct {
	Account  AccountForm
	Intent   Intent
	External *federated.Credential
}

// validate checks the form. needPassword is false when the identity
// already exists.
func (r Registration) validate(needPassword bool) error {
	if strings.TrimSpace(r.Account.Email) == "" {
		return accounterr.Invalid("email", "email is required")
	}
	if needPassword && r.Account.Password == "" {
		return accounterr.Invalid("password", "password is required")
	}
	if normalize.Name(r.Account.FullName) == "" {
		return accounterr.Invalid("full_name", "full name is required")
	}
	if r.Intent == nil {
		return accounterr.Invalid("role", "role is required")
	}
	return r.Intent.validate()
}

// ProvisionedAccount is the mirrored state of everything a registration
// created. Student, Class and Member are set only when the registration
// created them.
type ProvisionedAccount struct {
	UID     string              `json:"uid"`
	Role    string              `json:"role"`
	Profile *mirror.Profile     `json:"profile"`
	Student *mirror.Student     `json:"student,omitempty"`
	Class   *mirror.Class       `json:"class,omitempty"`
	Member  *mirror.ClassMember `json:"member,omitempty"`
}
