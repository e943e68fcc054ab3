package core

import "creatorstudio/pkg/domain"

type (
	Project       = domain.Project
	Note          = domain.Note
	File          = domain.File
	Scene         = domain.Scene
	Profile       = domain.Profile
	ProjectPatch  = domain.ProjectPatch
	NotePatch     = domain.NotePatch
	FilePatch     = domain.FilePatch
	ProfilePatch  = domain.ProfilePatch
	CascadePolicy = domain.CascadePolicy
	Medium        = domain.Medium
)

const (
	CascadeLeave  = domain.CascadeLeave
	CascadeDelete = domain.CascadeDelete
	CascadeDetach = domain.CascadeDetach
)

// ListOptions narrows a list or iteration. An empty ProjectID covers every
// record, global ones included; Query is a case-insensitive substring filter.
type ListOptions struct {
	ProjectID string
	Query     string
}

// DefaultProjectTitle names the project EnsureDefaultProject creates.
const DefaultProjectTitle = "Default Project"

// UntitledTitle replaces blank project and note titles.
const UntitledTitle = "Untitled"

// DefaultFileType is used when a file is added without a type.
const DefaultFileType = "txt"
