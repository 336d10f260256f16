package model

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     Role
		minimum  Role
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleViewer, true},
		{RoleManager, RoleAdmin, false},
		{RoleManager, RoleEmployee, true},
		{RoleEmployee, RoleManager, false},
		{RoleEmployee, RoleViewer, true},
		{RoleViewer, RoleEmployee, false},
		{RoleViewer, RoleViewer, true},
		// Unknown roles fail-closed.
		{"unknown", RoleViewer, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"manager", RoleManager, true},
		{"employee", RoleEmployee, true},
		{"viewer", RoleViewer, true},
		{"writer", RoleManager, true},
		{"read-write", RoleEmployee, true},
		{"reader", RoleViewer, true},
		{"owner", "", false},
		{"", "", false},
		{"Admin", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRolePermissionsExhaustive(t *testing.T) {
	for _, r := range Roles {
		if len(r.Permissions()) == 0 {
			t.Errorf("role %q has no permission set", r)
		}
	}
	if len(rolePermissions) != len(Roles) {
		t.Errorf("permission table has %d roles, want %d", len(rolePermissions), len(Roles))
	}
}

func TestRolePermissionsAreMonotonic(t *testing.T) {
	// A stronger role never loses a permission a weaker one has.
	for i := 0; i < len(Roles)-1; i++ {
		stronger, weaker := Roles[i], Roles[i+1]
		for _, p := range weaker.Permissions() {
			if !stronger.Can(p) {
				t.Errorf("%q lacks %q granted to %q", stronger, p, weaker)
			}
		}
	}
}

func TestRoleCan(t *testing.T) {
	if !RoleViewer.Can(PermProductRead) {
		t.Error("viewer should read products")
	}
	if RoleViewer.Can(PermProductRead, PermProductWrite) {
		t.Error("viewer should not write products")
	}
	if RoleManager.Can(PermOrgManage) {
		t.Error("manager should not manage the organization")
	}
	if Role("ghost").Can(PermProductRead) {
		t.Error("unknown role should have no permissions")
	}
}

func TestMovementSigned(t *testing.T) {
	in := StockMovement{Direction: DirectionIn, Magnitude: 4}
	out := StockMovement{Direction: DirectionOut, Magnitude: 4}
	if in.Signed() != 4 || out.Signed() != -4 {
		t.Errorf("Signed() = %d, %d, want 4, -4", in.Signed(), out.Signed())
	}
}
