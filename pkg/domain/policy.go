package domain

import "fmt"

// CascadePolicy decides what happens to notes, files and scenes owned by a
// project when that project is deleted.
type CascadePolicy string

const (
	// CascadeLeave keeps children with a dangling ProjectID.
	CascadeLeave CascadePolicy = "leave"
	// CascadeDelete removes every child record.
	CascadeDelete CascadePolicy = "delete"
	// CascadeDetach clears ProjectID so children become global.
	CascadeDetach CascadePolicy = "detach"
)

// ParseCascadePolicy parses a policy name; the empty string means CascadeLeave.
func ParseCascadePolicy(s string) (CascadePolicy, error) {
	switch CascadePolicy(s) {
	case "", CascadeLeave:
		return CascadeLeave, nil
	case CascadeDelete, CascadeDetach:
		return CascadePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown cascade policy %q", s)
	}
}
