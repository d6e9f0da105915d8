package usecase

import (
	"testing"
	"time"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
)

func newAccessTask() domain.TaskResource {
	return domain.TaskResource{
		TaskID:                 "task-1",
		CaseID:                 "1623278362431003",
		CaseTypeID:             "Asylum",
		Jurisdiction:           "IA",
		Region:                 "1",
		Location:               "765324",
		SecurityClassification: domain.ClassificationPublic,
		State:                  domain.TaskStateUnassigned,
		Roles: []domain.TaskRoleResource{
			{
				RoleName:       "tribunal-caseworker",
				Permissions:    domain.NewPermissionSet(domain.PermissionRead, domain.PermissionOwn, domain.PermissionExecute),
				Authorisations: []string{"IA"},
			},
			{
				RoleName:    "senior-tribunal-caseworker",
				Permissions: domain.NewPermissionSet(domain.PermissionRead, domain.PermissionManage, domain.PermissionComplete),
			},
			{
				RoleName:    "case-manager",
				Permissions: domain.NewPermissionSet(domain.PermissionOwn),
			},
		},
	}
}

func organisationalRole(actorID, roleName string) domain.RoleAssignment {
	return domain.RoleAssignment{
		ActorID:        actorID,
		RoleName:       roleName,
		RoleType:       domain.RoleTypeOrganisation,
		Classification: domain.ClassificationPublic,
		GrantType:      domain.GrantTypeStandard,
		Authorisations: []string{"IA"},
		Attributes:     map[string]string{domain.AttributeJurisdiction: "IA"},
	}
}

func newTestEvaluator() *RoleAssignmentEvaluator {
	return NewRoleAssignmentEvaluator(nil).WithClock(func() time.Time { return fixedNow })
}

func TestHasAccessRejectsInsufficientGrant(t *testing.T) {
	evaluator := newTestEvaluator()
	task := newAccessTask()
	roles := []domain.RoleAssignment{organisationalRole("user-1", "case-manager")}

	if evaluator.HasAccess(task, roles, CompleteRequirement) {
		t.Fatal("OWN alone must not satisfy the completion requirement")
	}
	if !evaluator.HasAccess(task, []domain.RoleAssignment{organisationalRole("user-1", "tribunal-caseworker")}, CompleteRequirement) {
		t.Fatal("OWN and EXECUTE should satisfy the completion requirement")
	}
}

func TestGrantedPermissionsFilters(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*domain.RoleAssignment)
		want   bool
	}{
		{"eligible", func(*domain.RoleAssignment) {}, true},
		{"expired", func(r *domain.RoleAssignment) { r.EndTime = &past }, false},
		{"not yet started", func(r *domain.RoleAssignment) { r.BeginTime = &future }, false},
		{"other jurisdiction", func(r *domain.RoleAssignment) { r.Attributes[domain.AttributeJurisdiction] = "SSCS" }, false},
		{"jurisdiction ignores case", func(r *domain.RoleAssignment) { r.Attributes[domain.AttributeJurisdiction] = "ia" }, true},
		{"other case", func(r *domain.RoleAssignment) { r.Attributes[domain.AttributeCaseID] = "999" }, false},
		{"other region", func(r *domain.RoleAssignment) { r.Attributes[domain.AttributeRegion] = "2" }, false},
		{"missing authorisation", func(r *domain.RoleAssignment) { r.Authorisations = []string{"SSCS"} }, false},
		{"case role without case id", func(r *domain.RoleAssignment) { r.RoleType = domain.RoleTypeCase }, false},
		{"classification too low", func(r *domain.RoleAssignment) { r.Classification = "" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role := organisationalRole("user-1", "tribunal-caseworker")
			tc.mutate(&role)

			granted := newTestEvaluator().GrantedPermissions(newAccessTask(), []domain.RoleAssignment{role})
			if got := granted.Has(domain.PermissionRead); got != tc.want {
				t.Fatalf("expected READ granted=%t, got %v", tc.want, granted.Strings())
			}
		})
	}
}

func TestRestrictedClassificationNeedsMatchingGrant(t *testing.T) {
	task := newAccessTask()
	task.SecurityClassification = domain.ClassificationRestricted

	public := organisationalRole("user-1", "tribunal-caseworker")
	restricted := public
	restricted.Classification = domain.ClassificationRestricted

	evaluator := newTestEvaluator()
	if evaluator.HasAccess(task, []domain.RoleAssignment{public}, ReadRequirement) {
		t.Fatal("PUBLIC grant must not read a RESTRICTED task")
	}
	if !evaluator.HasAccess(task, []domain.RoleAssignment{restricted}, ReadRequirement) {
		t.Fatal("RESTRICTED grant should read a RESTRICTED task")
	}
}

func TestExcludedGrantRemovesStandardPermissions(t *testing.T) {
	task := newAccessTask()

	standard := organisationalRole("user-1", "tribunal-caseworker")
	excluded := organisationalRole("user-1", "conflict-of-interest")
	excluded.GrantType = domain.GrantTypeExcluded
	specific := organisationalRole("user-1", "senior-tribunal-caseworker")
	specific.GrantType = domain.GrantTypeSpecific

	granted := newTestEvaluator().GrantedPermissions(task, []domain.RoleAssignment{standard, excluded, specific})
	if granted.Has(domain.PermissionOwn) {
		t.Fatal("standard permissions should be withdrawn by an exclusion")
	}
	if !granted.Has(domain.PermissionManage) {
		t.Fatal("specific permissions survive an exclusion")
	}
}

func TestUnrestrictedRoleIgnoresCandidateAuthorisations(t *testing.T) {
	task := newAccessTask()
	role := organisationalRole("user-1", "senior-tribunal-caseworker")
	role.Authorisations = nil

	if !newTestEvaluator().HasAccess(task, []domain.RoleAssignment{role}, ManageRequirement) {
		t.Fatal("a task role without authorisations must not filter candidates")
	}
}

func TestHasAccessWithAssigneeCheckAndHierarchy(t *testing.T) {
	task := newAccessTask()
	task.State = domain.TaskStateAssigned
	task.Assignee = strPtr("junior-user")

	senior := []domain.RoleAssignment{organisationalRole("senior-user", "senior-tribunal-caseworker")}
	junior := []domain.RoleAssignment{organisationalRole("junior-user", "tribunal-caseworker")}
	evaluator := newTestEvaluator()

	if !evaluator.HasAccessWithAssigneeCheckAndHierarchy(task, "senior-user", senior, junior, CompleteOthersRequirement) {
		t.Fatal("senior caseworker should act on a junior caseworker's task")
	}

	task.Assignee = strPtr("senior-user")
	peer := []domain.RoleAssignment{organisationalRole("other-senior", "senior-tribunal-caseworker")}
	if evaluator.HasAccessWithAssigneeCheckAndHierarchy(task, "other-senior", peer, senior, CompleteOthersRequirement) {
		t.Fatal("peers must not override each other")
	}
}

func TestRoleHierarchyIsTransitive(t *testing.T) {
	hierarchy := RoleHierarchy{
		"leadership-judge":           {"senior-tribunal-caseworker"},
		"senior-tribunal-caseworker": {"tribunal-caseworker"},
		"tribunal-caseworker":        {"leadership-judge"},
	}

	if !hierarchy.Dominates("leadership-judge", "tribunal-caseworker") {
		t.Fatal("expected transitive dominance")
	}
	if hierarchy.Dominates("tribunal-caseworker", "tribunal-caseworker") {
		t.Fatal("a role never dominates itself")
	}
	if hierarchy.Dominates("tribunal-caseworker", "unknown") {
		t.Fatal("cycle must terminate without a match")
	}
}
