package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PermissionType names a single grant a task role can carry.
type PermissionType string

const (
	PermissionRead           PermissionType = "READ"
	PermissionOwn            PermissionType = "OWN"
	PermissionExecute        PermissionType = "EXECUTE"
	PermissionManage         PermissionType = "MANAGE"
	PermissionCancel         PermissionType = "CANCEL"
	PermissionRefer          PermissionType = "REFER"
	PermissionComplete       PermissionType = "COMPLETE"
	PermissionCompleteOwn    PermissionType = "COMPLETE_OWN"
	PermissionCancelOwn      PermissionType = "CANCEL_OWN"
	PermissionClaim          PermissionType = "CLAIM"
	PermissionUnclaim        PermissionType = "UNCLAIM"
	PermissionAssign         PermissionType = "ASSIGN"
	PermissionUnassign       PermissionType = "UNASSIGN"
	PermissionUnclaimAssign  PermissionType = "UNCLAIM_ASSIGN"
	PermissionUnassignClaim  PermissionType = "UNASSIGN_CLAIM"
	PermissionUnassignAssign PermissionType = "UNASSIGN_ASSIGN"
)

var compoundComponents = map[PermissionType][2]PermissionType{
	PermissionUnclaimAssign:  {PermissionUnclaim, PermissionAssign},
	PermissionUnassignClaim:  {PermissionUnassign, PermissionClaim},
	PermissionUnassignAssign: {PermissionUnassign, PermissionAssign},
}

var knownPermissions = map[PermissionType]struct{}{
	PermissionRead: {}, PermissionOwn: {}, PermissionExecute: {}, PermissionManage: {},
	PermissionCancel: {}, PermissionRefer: {}, PermissionComplete: {}, PermissionCompleteOwn: {},
	PermissionCancelOwn: {}, PermissionClaim: {}, PermissionUnclaim: {}, PermissionAssign: {},
	PermissionUnassign: {}, PermissionUnclaimAssign: {}, PermissionUnassignClaim: {},
	PermissionUnassignAssign: {},
}

// ErrUnknownPermission is returned when a permission name is not recognised.
var ErrUnknownPermission = errors.New("permission: unknown permission type")

// ParsePermissionType normalises a configured permission name.
func ParsePermissionType(value string) (PermissionType, error) {
	candidate := PermissionType(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := knownPermissions[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, value)
	}
	return candidate, nil
}

// Components returns the primitive pair behind a compound permission.
func (p PermissionType) Components() ([2]PermissionType, bool) {
	pair, ok := compoundComponents[p]
	return pair, ok
}

// IsCompound reports whether the permission is shorthand for two primitives.
func (p PermissionType) IsCompound() bool {
	_, ok := compoundComponents[p]
	return ok
}

// PermissionSet is an unordered set of granted permissions.
type PermissionSet map[PermissionType]struct{}

// NewPermissionSet builds a set from the supplied permissions.
func NewPermissionSet(perms ...PermissionType) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet parses a comma separated permission list such as "Read,Own,Execute".
func ParsePermissionSet(value string) (PermissionSet, error) {
	set := NewPermissionSet()
	for _, raw := range strings.Split(value, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		p, err := ParsePermissionType(raw)
		if err != nil {
			return nil, err
		}
		set.Add(p)
	}
	return set, nil
}

// Add inserts permissions into the set.
func (s PermissionSet) Add(perms ...PermissionType) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// Has reports whether the permission was granted directly.
func (s PermissionSet) Has(p PermissionType) bool {
	_, ok := s[p]
	return ok
}

// Satisfies reports whether the permission is granted directly or, for a compound, through both
// of its primitives.
func (s PermissionSet) Satisfies(p PermissionType) bool {
	if s.Has(p) {
		return true
	}
	if pair, ok := p.Components(); ok {
		return s.Has(pair[0]) && s.Has(pair[1])
	}
	return false
}

// Union merges other into s.
func (s PermissionSet) Union(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	out.Union(s)
	return out
}

// Slice returns the permissions sorted by name.
func (s PermissionSet) Slice() []PermissionType {
	out := make([]PermissionType, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permission names.
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
