package domain

import "testing"

func TestValidateNamespace(t *testing.T) {
	valid := []string{"project", "project/task", "a/b/c", "proj-1/sub_task/v1.2"}
	for _, ns := range valid {
		if err := ValidateNamespace(ns); err != nil {
			t.Errorf("ValidateNamespace(%q) unexpected error: %v", ns, err)
		}
	}

	invalid := []string{"", "/project", "project/", "a//b", "Project", "a b", "a/b!"}
	for _, ns := range invalid {
		if err := ValidateNamespace(ns); err == nil {
			t.Errorf("ValidateNamespace(%q) expected error", ns)
		}
	}
}

func TestNamespaceDepth(t *testing.T) {
	tests := []struct {
		ns   string
		want int
	}{
		{"project", 1},
		{"project/task", 2},
		{"a/b/c", 3},
	}

	for _, tt := range tests {
		if got := NamespaceDepth(tt.ns); got != tt.want {
			t.Errorf("NamespaceDepth(%q) = %d, want %d", tt.ns, got, tt.want)
		}
	}
}

func TestIsParentNamespace(t *testing.T) {
	if !IsParentNamespace("project", "project/task") {
		t.Error("project should be a parent of project/task")
	}
	if !IsParentNamespace("project", "project/task/sub") {
		t.Error("parent check should span multiple levels")
	}
	if IsParentNamespace("project/task", "project") {
		t.Error("child should not be a parent of its parent")
	}
	if IsParentNamespace("project", "project") {
		t.Error("a namespace is not its own parent")
	}
	if IsParentNamespace("pro", "project/task") {
		t.Error("prefix match must respect segment boundaries")
	}
}
