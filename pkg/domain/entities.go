// Package domain defines the persistent record types, patches, errors and the
// keyed storage medium contract shared by the creatorstudio record store.
package domain

import (
	"encoding/json"
	"time"
)

// Collection names a group of like-typed records.
type Collection string

// Supported collections. Each maps to one object table in an indexed medium
// and one bucket in a snapshot medium.
const (
	CollectionProjects Collection = "projects"
	CollectionNotes    Collection = "notes"
	CollectionFiles    Collection = "files"
	CollectionScenes   Collection = "scenes"
	CollectionProfile  Collection = "profile"
)

// Collections lists every collection in schema order.
var Collections = []Collection{
	CollectionProjects,
	CollectionNotes,
	CollectionFiles,
	CollectionScenes,
	CollectionProfile,
}

// IndexByProject names the non-unique secondary index over the owning project.
const IndexByProject = "byProject"

// ProfileKey is the fixed primary key of the singleton profile record.
const ProfileKey = "me"

// Indexed reports whether the collection carries the byProject index.
func (c Collection) Indexed() bool {
	switch c {
	case CollectionNotes, CollectionFiles, CollectionScenes:
		return true
	default:
		return false
	}
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Record is implemented by every stored entity.
type Record interface {
	// RecordKey returns the primary key.
	RecordKey() string
	// IndexValue returns the byProject index value; empty means unindexed.
	IndexValue() string
}

// Project groups notes, files and scenes.
type Project struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Note is a titled text record, optionally owned by a project.
type Note struct {
	ID        string    `json:"id" validate:"required"`
	ProjectID string    `json:"projectId,omitempty"`
	Title     string    `json:"title" validate:"required"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// File is a named code or text document with a content-kind tag.
type File struct {
	ID        string    `json:"id" validate:"required"`
	ProjectID string    `json:"projectId,omitempty"`
	Name      string    `json:"name" validate:"required"`
	Type      string    `json:"type" validate:"required"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Scene is an append-only snapshot of the 3D authoring surface. Payload is
// stored verbatim and never interpreted.
type Scene struct {
	ID        string          `json:"id" validate:"required"`
	ProjectID string          `json:"projectId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Profile is the singleton user profile.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Avatar      []byte    `json:"avatar,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

func (p Project) RecordKey() string  { return p.ID }
func (p Project) IndexValue() string { return "" }
func (n Note) RecordKey() string     { return n.ID }
func (n Note) IndexValue() string    { return n.ProjectID }
func (f File) RecordKey() string     { return f.ID }
func (f File) IndexValue() string    { return f.ProjectID }
func (s Scene) RecordKey() string    { return s.ID }
func (s Scene) IndexValue() string   { return s.ProjectID }
func (p Profile) RecordKey() string  { return ProfileKey }
func (p Profile) IndexValue() string { return "" }

// Shape describes one object placed on the authoring surface.
type Shape struct {
	Kind     string     `json:"kind"`
	Position [3]float64 `json:"position"`
	Color    string     `json:"color"`
}

// EncodeShapes serializes shapes into a scene payload.
func EncodeShapes(shapes []Shape) (json.RawMessage, error) {
	if shapes == nil {
		shapes = []Shape{}
	}
	b, err := json.Marshal(shapes)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// Clone returns a copy of the scene that shares no memory with s.
func (s Scene) Clone() Scene {
	if s.Payload != nil {
		s.Payload = append(json.RawMessage(nil), s.Payload...)
	}
	return s
}

// Clone returns a copy of the profile that shares no memory with p.
func (p Profile) Clone() Profile {
	if p.Avatar != nil {
		p.Avatar = append([]byte(nil), p.Avatar...)
	}
	return p
}
