package domain

import (
	"strings"
	"time"
)

// ActorIDType identifies what kind of actor a role assignment is granted to.
type ActorIDType string

const (
	ActorIDTypeIDAM             ActorIDType = "IDAM"
	ActorIDTypeOrganisationUnit ActorIDType = "ORGANISATION_UNIT"
)

// RoleType distinguishes organisational roles from roles scoped to a single case.
type RoleType string

const (
	RoleTypeOrganisation RoleType = "ORGANISATION"
	RoleTypeCase         RoleType = "CASE"
)

// Classification is the sensitivity tier of a role assignment or task.
type Classification string

const (
	ClassificationPublic     Classification = "PUBLIC"
	ClassificationPrivate    Classification = "PRIVATE"
	ClassificationRestricted Classification = "RESTRICTED"
)

// Rank orders classifications; unknown values rank below PUBLIC.
func (c Classification) Rank() int {
	switch c {
	case ClassificationPublic:
		return 1
	case ClassificationPrivate:
		return 2
	case ClassificationRestricted:
		return 3
	}
	return 0
}

// Covers reports whether c is at least as high as required.
func (c Classification) Covers(required Classification) bool {
	if required == "" {
		return true
	}
	return c.Rank() >= required.Rank()
}

// GrantType records the provenance of a role assignment.
type GrantType string

const (
	GrantTypeStandard   GrantType = "STANDARD"
	GrantTypeSpecific   GrantType = "SPECIFIC"
	GrantTypeChallenged GrantType = "CHALLENGED"
	GrantTypeExcluded   GrantType = "EXCLUDED"
	GrantTypeBasic      GrantType = "BASIC"
)

// RoleCategory is a coarse grouping of role names.
type RoleCategory string

const (
	RoleCategoryLegalOperations RoleCategory = "LEGAL_OPERATIONS"
	RoleCategoryJudicial        RoleCategory = "JUDICIAL"
	RoleCategoryAdmin           RoleCategory = "ADMIN"
	RoleCategoryCTSC            RoleCategory = "CTSC"
)

// Role assignment attribute keys.
const (
	AttributeJurisdiction = "jurisdiction"
	AttributeCaseType     = "caseType"
	AttributeCaseID       = "caseId"
	AttributeRegion       = "region"
	AttributeBaseLocation = "baseLocation"
)

// RoleAssignment is a grant of a named role to an actor issued by the role-assignment service.
// It is read-only for this service.
type RoleAssignment struct {
	ID             string
	ActorIDType    ActorIDType
	ActorID        string
	RoleName       string
	RoleType       RoleType
	Classification Classification
	GrantType      GrantType
	RoleCategory   RoleCategory
	ReadOnly       bool
	BeginTime      *time.Time
	EndTime        *time.Time
	Authorisations []string
	Attributes     map[string]string
}

// ActiveAt reports whether at lies inside the validity window. Missing bounds are open.
func (r RoleAssignment) ActiveAt(at time.Time) bool {
	if r.BeginTime != nil && at.Before(*r.BeginTime) {
		return false
	}
	if r.EndTime != nil && !at.Before(*r.EndTime) {
		return false
	}
	return true
}

// Attribute returns a trimmed attribute value when present and non-blank.
func (r RoleAssignment) Attribute(key string) (string, bool) {
	if r.Attributes == nil {
		return "", false
	}
	value, ok := r.Attributes[key]
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// AuthorisationsIntersect reports whether any token appears in both lists, ignoring case.
func AuthorisationsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, token := range a {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			seen[token] = struct{}{}
		}
	}
	for _, token := range b {
		if _, ok := seen[strings.ToLower(strings.TrimSpace(token))]; ok {
			return true
		}
	}
	return false
}
