package domain

import (
	"fmt"
	"strings"
)

// Namespaces are convention-based, slash-delimited hierarchies such as
// "project/context/subcontext". Hierarchy lives in the name alone; there is
// no tree structure to maintain.

func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	for _, seg := range strings.Split(ns, "/") {
		if seg == "" {
			return fmt.Errorf("namespace %q has an empty segment", ns)
		}
		for _, r := range seg {
			if !isNamespaceRune(r) {
				return fmt.Errorf("namespace %q contains invalid character %q", ns, r)
			}
		}
	}
	return nil
}

func isNamespaceRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}

// NamespaceDepth counts slash-separated components.
func NamespaceDepth(ns string) int {
	return len(strings.Split(ns, "/"))
}

// IsParentNamespace reports whether parent strictly contains child in the
// hierarchy, e.g. "project" is a parent of "project/task".
func IsParentNamespace(parent, child string) bool {
	return strings.HasPrefix(child, parent+"/")
}
