package domain

import (
	"errors"
	"math/rand"
	"testing"
)

func TestRequirementEvaluate(t *testing.T) {
	completion := MustRequirement(Any(
		AllOf(PermissionOwn, PermissionExecute),
		Literal(PermissionComplete),
		Literal(PermissionCompleteOwn),
	))

	cases := []struct {
		name    string
		granted PermissionSet
		want    bool
	}{
		{"own only", NewPermissionSet(PermissionOwn), false},
		{"own and execute", NewPermissionSet(PermissionOwn, PermissionExecute), true},
		{"complete", NewPermissionSet(PermissionComplete), true},
		{"complete own", NewPermissionSet(PermissionCompleteOwn), true},
		{"nothing", NewPermissionSet(), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := completion.Evaluate(tc.granted); got != tc.want {
				t.Fatalf("Evaluate = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestRequirementCombinatorsMatchBooleanLogic(t *testing.T) {
	a := Literal(PermissionRead)
	b := Literal(PermissionOwn)

	for _, granted := range []PermissionSet{
		NewPermissionSet(),
		NewPermissionSet(PermissionRead),
		NewPermissionSet(PermissionOwn),
		NewPermissionSet(PermissionRead, PermissionOwn),
	} {
		ea, eb := a.Evaluate(granted), b.Evaluate(granted)
		if got := Any(a, b).Evaluate(granted); got != (ea || eb) {
			t.Fatalf("OR mismatch for %v: got %t", granted.Strings(), got)
		}
		if got := All(a, b).Evaluate(granted); got != (ea && eb) {
			t.Fatalf("AND mismatch for %v: got %t", granted.Strings(), got)
		}
	}
}

func TestRequirementMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	requirements := []Requirement{
		Literal(PermissionRead),
		AllOf(PermissionOwn, PermissionExecute),
		AnyOf(PermissionUnclaim, PermissionUnassign),
		Any(AllOf(PermissionClaim, PermissionOwn), Literal(PermissionUnassignAssign)),
		All(AnyOf(PermissionCancel, PermissionCancelOwn), Literal(PermissionRead)),
	}

	for i := 0; i < 200; i++ {
		smaller := NewPermissionSet()
		for _, p := range allPermissions {
			if rng.Intn(3) == 0 {
				smaller.Add(p)
			}
		}
		larger := smaller.Clone()
		larger.Add(allPermissions[rng.Intn(len(allPermissions))])

		for _, req := range requirements {
			if req.Evaluate(smaller) && !req.Evaluate(larger) {
				t.Fatalf("%s held for %v but not for superset %v", req, smaller.Strings(), larger.Strings())
			}
		}
	}
}

func TestNewRequirementRejectsEmptyTrees(t *testing.T) {
	for name, tree := range map[string]Requirement{
		"zero value":    {},
		"empty any":     Any(),
		"empty all":     All(),
		"blank literal": Literal(""),
		"nested empty":  Any(Literal(PermissionRead), All()),
	} {
		if _, err := NewRequirement(tree); !errors.Is(err, ErrEmptyRequirement) {
			t.Fatalf("%s: expected ErrEmptyRequirement, got %v", name, err)
		}
	}
}

func TestRequirementString(t *testing.T) {
	req := Any(AllOf(PermissionOwn, PermissionExecute), Literal(PermissionComplete))
	if got := req.String(); got != "(OWN AND EXECUTE) OR COMPLETE" {
		t.Fatalf("unexpected rendering: %s", got)
	}
}
