// Package identity describes who is calling into the booking engine.
//
// Actor is a closed set of variants. Code that needs role specific behaviour
// switches on the concrete type instead of comparing role strings.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

type Role string

const (
	RoleResident Role = "resident"
	RoleDoctor   Role = "doctor"
	RoleFaculty  Role = "faculty"
	RoleStaff    Role = "staff"
	RoleStudent  Role = "student"
	RoleAdmin    Role = "admin"
)

// Actor is implemented only by the variants in this package.
type Actor interface {
	UserID() int64
	Role() Role
	actor()
}

type Resident struct {
	ID   int64
	Flat string
}

type Doctor struct {
	ID             int64
	Specialization string
}

type Faculty struct {
	ID         int64
	Department string
}

type Staff struct {
	ID         int64
	Department string
}

type Student struct {
	ID         int64
	RollNumber string
}

type Admin struct {
	ID int64
}

func (a Resident) UserID() int64 { return a.ID }
func (a Doctor) UserID() int64   { return a.ID }
func (a Faculty) UserID() int64  { return a.ID }
func (a Staff) UserID() int64    { return a.ID }
func (a Student) UserID() int64  { return a.ID }
func (a Admin) UserID() int64    { return a.ID }

func (Resident) Role() Role { return RoleResident }
func (Doctor) Role() Role   { return RoleDoctor }
func (Faculty) Role() Role  { return RoleFaculty }
func (Staff) Role() Role    { return RoleStaff }
func (Student) Role() Role  { return RoleStudent }
func (Admin) Role() Role    { return RoleAdmin }

func (Resident) actor() {}
func (Doctor) actor()   {}
func (Faculty) actor()  {}
func (Staff) actor()    {}
func (Student) actor()  {}
func (Admin) actor()    {}

// Attributes carries the variant specific fields when an actor is rebuilt
// from a token or a session record. Fields irrelevant to the role are ignored.
type Attributes struct {
	Flat           string
	Specialization string
	Department     string
	RollNumber     string
}

// New builds the variant matching role.
func New(role string, id int64, attrs Attributes) (Actor, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid user id %d", id)
	}
	switch Role(strings.ToLower(role)) {
	case RoleResident:
		return Resident{ID: id, Flat: attrs.Flat}, nil
	case RoleDoctor:
		return Doctor{ID: id, Specialization: attrs.Specialization}, nil
	case RoleFaculty:
		return Faculty{ID: id, Department: attrs.Department}, nil
	case RoleStaff:
		return Staff{ID: id, Department: attrs.Department}, nil
	case RoleStudent:
		return Student{ID: id, RollNumber: attrs.RollNumber}, nil
	case RoleAdmin:
		return Admin{ID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// AttributesOf is the inverse of New for the variant fields.
func AttributesOf(a Actor) Attributes {
	switch v := a.(type) {
	case Resident:
		return Attributes{Flat: v.Flat}
	case Doctor:
		return Attributes{Specialization: v.Specialization}
	case Faculty:
		return Attributes{Department: v.Department}
	case Staff:
		return Attributes{Department: v.Department}
	case Student:
		return Attributes{RollNumber: v.RollNumber}
	default:
		return Attributes{}
	}
}

// IsPatient reports whether the actor books care for themselves.
func IsPatient(a Actor) bool {
	switch a.(type) {
	case Resident, Faculty, Staff, Student:
		return true
	default:
		return false
	}
}
