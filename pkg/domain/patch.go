package domain

// Patches carry optional fields: a nil pointer leaves the stored value as is,
// a non-nil pointer replaces it (including with the zero value).

// ProjectPatch updates a project.
type ProjectPatch struct {
	Title *string `json:"title,omitempty"`
}

// NotePatch updates a note.
type NotePatch struct {
	ProjectID *string `json:"projectId,omitempty"`
	Title     *string `json:"title,omitempty"`
	Content   *string `json:"content,omitempty"`
	Pinned    *bool   `json:"pinned,omitempty"`
}

// FilePatch updates a file.
type FilePatch struct {
	ProjectID *string `json:"projectId,omitempty"`
	Name      *string `json:"name,omitempty"`
	Type      *string `json:"type,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// ProfilePatch merges into the singleton profile.
type ProfilePatch struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Avatar      []byte  `json:"avatar,omitempty"`
}

// Apply merges the patch into p.
func (pp ProjectPatch) Apply(p *Project) {
	if pp.Title != nil {
		p.Title = *pp.Title
	}
}

// Apply merges the patch into n.
func (np NotePatch) Apply(n *Note) {
	if np.ProjectID != nil {
		n.ProjectID = *np.ProjectID
	}
	if np.Title != nil {
		n.Title = *np.Title
	}
	if np.Content != nil {
		n.Content = *np.Content
	}
	if np.Pinned != nil {
		n.Pinned = *np.Pinned
	}
}

// Apply merges the patch into f.
func (fp FilePatch) Apply(f *File) {
	if fp.ProjectID != nil {
		f.ProjectID = *fp.ProjectID
	}
	if fp.Name != nil {
		f.Name = *fp.Name
	}
	if fp.Type != nil {
		f.Type = *fp.Type
	}
	if fp.Content != nil {
		f.Content = *fp.Content
	}
}

// Apply merges the patch into p. A nil Avatar keeps the stored avatar.
func (pp ProfilePatch) Apply(p *Profile) {
	if pp.DisplayName != nil {
		p.DisplayName = *pp.DisplayName
	}
	if pp.Bio != nil {
		p.Bio = *pp.Bio
	}
	if pp.Avatar != nil {
		p.Avatar = append([]byte(nil), pp.Avatar...)
	}
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T { return &v }
