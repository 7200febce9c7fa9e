package rbac

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		input string
		want  Role
	}{
		{"viewer", RoleViewer},
		{"manager", RoleManager},
		{"admin", RoleAdmin},
		{"Admin", RoleAdmin},
		{"  MANAGER  ", RoleManager},
		{"", RoleViewer},
		{"superuser", RoleViewer},
		{"root", RoleViewer},
	}

	for _, tc := range cases {
		if got := Normalize(tc.input); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSeesAllDepartments(t *testing.T) {
	if SeesAllDepartments(RoleViewer) {
		t.Error("viewer should not see all departments")
	}
	if !SeesAllDepartments(RoleManager) {
		t.Error("manager should see all departments")
	}
	if !SeesAllDepartments(RoleAdmin) {
		t.Error("admin should see all departments")
	}
}
