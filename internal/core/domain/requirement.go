package domain

import (
	"errors"
	"strings"
)

// ErrEmptyRequirement signals a requirement tree that has nothing to check.
var ErrEmptyRequirement = errors.New("permission: requirement must not be empty")

type requirementOp uint8

const (
	opNone requirementOp = iota
	opLiteral
	opAll
	opAny
)

// Requirement is a boolean expression over permissions. The zero value places no restriction.
type Requirement struct {
	op         requirementOp
	permission PermissionType
	children   []Requirement
}

// Literal requires a single permission.
func Literal(p PermissionType) Requirement {
	return Requirement{op: opLiteral, permission: p}
}

// All requires every child expression.
func All(children ...Requirement) Requirement {
	return Requirement{op: opAll, children: children}
}

// Any requires at least one child expression.
func Any(children ...Requirement) Requirement {
	return Requirement{op: opAny, children: children}
}

// AllOf is All over permission literals.
func AllOf(perms ...PermissionType) Requirement {
	return All(literals(perms)...)
}

// AnyOf is Any over permission literals.
func AnyOf(perms ...PermissionType) Requirement {
	return Any(literals(perms)...)
}

func literals(perms []PermissionType) []Requirement {
	out := make([]Requirement, len(perms))
	for i, p := range perms {
		out[i] = Literal(p)
	}
	return out
}

// NewRequirement validates a requirement tree. Empty trees, empty combinators and blank literals
// are configuration errors.
func NewRequirement(tree Requirement) (Requirement, error) {
	if err := tree.validate(); err != nil {
		return Requirement{}, err
	}
	return tree, nil
}

// MustRequirement is NewRequirement for package level declarations.
func MustRequirement(tree Requirement) Requirement {
	req, err := NewRequirement(tree)
	if err != nil {
		panic(err)
	}
	return req
}

func (r Requirement) validate() error {
	switch r.op {
	case opLiteral:
		if strings.TrimSpace(string(r.permission)) == "" {
			return ErrEmptyRequirement
		}
	case opAll, opAny:
		if len(r.children) == 0 {
			return ErrEmptyRequirement
		}
		for _, child := range r.children {
			if err := child.validate(); err != nil {
				return err
			}
		}
	default:
		return ErrEmptyRequirement
	}
	return nil
}

// IsEmpty reports whether the requirement is the unrestricted zero value.
func (r Requirement) IsEmpty() bool {
	return r.op == opNone
}

// Evaluate reports whether the granted permissions satisfy the requirement.
func (r Requirement) Evaluate(granted PermissionSet) bool {
	switch r.op {
	case opNone:
		return true
	case opLiteral:
		return granted.Satisfies(r.permission)
	case opAll:
		for _, child := range r.children {
			if !child.Evaluate(granted) {
				return false
			}
		}
		return true
	case opAny:
		for _, child := range r.children {
			if child.Evaluate(granted) {
				return true
			}
		}
		return false
	}
	return false
}

// String renders the expression for logs, e.g. "(OWN AND EXECUTE) OR COMPLETE".
func (r Requirement) String() string {
	switch r.op {
	case opLiteral:
		return string(r.permission)
	case opAll, opAny:
		sep := " AND "
		if r.op == opAny {
			sep = " OR "
		}
		parts := make([]string, len(r.children))
		for i, child := range r.children {
			s := child.String()
			if child.op == opAll || child.op == opAny {
				s = "(" + s + ")"
			}
			parts[i] = s
		}
		return strings.Join(parts, sep)
	}
	return ""
}
