package access

import "testing"

func TestAllowedLevelsMonotonic(t *testing.T) {
	basic := AllowedLevels(LevelBasic)
	standard := AllowedLevels(LevelStandard)
	advanced := AllowedLevels(LevelAdvanced)

	asSet := func(levels []string) map[string]bool {
		s := make(map[string]bool, len(levels))
		for _, l := range levels {
			s[l] = true
		}
		return s
	}

	basicSet := asSet(basic)
	standardSet := asSet(standard)
	advancedSet := asSet(advanced)

	for l := range basicSet {
		if !standardSet[l] {
			t.Errorf("standard missing basic level %q", l)
		}
	}
	for l := range standardSet {
		if !advancedSet[l] {
			t.Errorf("advanced missing standard level %q", l)
		}
	}

	if len(advanced) != 4 {
		t.Errorf("advanced = %v, want all four levels", advanced)
	}
}

func TestAllowedLevelsUnknownClearance(t *testing.T) {
	got := AllowedLevels("superuser")
	if len(got) != 1 || got[0] != LevelPublic {
		t.Errorf("unknown clearance = %v, want [public]", got)
	}
}

func TestBuildFilterUnauthenticated(t *testing.T) {
	f := BuildFilter(LevelAdvanced, "")
	if !f.PublicOnly {
		t.Error("unauthenticated caller must be restricted to public content")
	}
	if len(f.AccessLevels) != 0 {
		t.Errorf("AccessLevels = %v, want empty for unauthenticated", f.AccessLevels)
	}
}

func TestMergeFiltersKeepsBaseScoping(t *testing.T) {
	base := BuildFilter(LevelStandard, "u1")
	base.EmployeeID = "A11111"

	merged := MergeFilters(base, nil)
	if merged.EmployeeID != "A11111" {
		t.Errorf("EmployeeID = %q, want A11111", merged.EmployeeID)
	}
	if len(merged.AccessLevels) != len(AllowedLevels(LevelStandard)) {
		t.Error("clearance cascade changed by merge with nil role filter")
	}
}

func TestMergeFiltersRoleFragment(t *testing.T) {
	base := BuildFilter(LevelBasic, "u1")

	role := BuildFilter(LevelAdvanced, "u1")
	role.EmployeeID = "A22222"

	merged := MergeFilters(base, role)
	if merged.EmployeeID != "A22222" {
		t.Errorf("EmployeeID = %q, want role-derived A22222", merged.EmployeeID)
	}
	// The cascade comes from the base filter; the role fragment never
	// widens it.
	if len(merged.AccessLevels) != len(AllowedLevels(LevelBasic)) {
		t.Errorf("AccessLevels = %v, want basic cascade", merged.AccessLevels)
	}
}
