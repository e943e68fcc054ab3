package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPatchesApplyOnlySetFields(t *testing.T) {
	n := Note{ID: "n1", ProjectID: "p1", Title: "Roadmap", Content: "ship", Pinned: true}
	NotePatch{Content: Ptr("")}.Apply(&n)
	if n.Content != "" || n.Title != "Roadmap" || !n.Pinned || n.ProjectID != "p1" {
		t.Fatalf("note patch applied unexpected fields: %+v", n)
	}
	NotePatch{ProjectID: Ptr(""), Pinned: Ptr(false)}.Apply(&n)
	if n.ProjectID != "" || n.Pinned {
		t.Fatalf("zero values should replace stored values: %+v", n)
	}

	f := File{Name: "a.js", Type: "js", Content: "x"}
	FilePatch{Type: Ptr("ts")}.Apply(&f)
	if f.Type != "ts" || f.Name != "a.js" || f.Content != "x" {
		t.Fatalf("file patch: %+v", f)
	}

	p := Project{Title: "Old"}
	ProjectPatch{}.Apply(&p)
	if p.Title != "Old" {
		t.Fatalf("empty patch changed title")
	}
	ProjectPatch{Title: Ptr("New")}.Apply(&p)
	if p.Title != "New" {
		t.Fatalf("title = %q", p.Title)
	}
}

func TestProfilePatchCopiesAvatar(t *testing.T) {
	avatar := []byte{1, 2, 3}
	p := Profile{DisplayName: "Ada", Bio: "builder"}
	ProfilePatch{Avatar: avatar}.Apply(&p)
	avatar[0] = 9
	if p.Avatar[0] != 1 {
		t.Fatalf("profile shares avatar memory with the patch")
	}
	ProfilePatch{Bio: Ptr("maker")}.Apply(&p)
	if p.DisplayName != "Ada" || p.Bio != "maker" || len(p.Avatar) != 3 {
		t.Fatalf("profile after partial patch: %+v", p)
	}

	clone := p.Clone()
	clone.Avatar[1] = 7
	if p.Avatar[1] != 2 {
		t.Fatalf("Clone shares avatar memory")
	}
}

func TestParseCascadePolicy(t *testing.T) {
	cases := map[string]CascadePolicy{"": CascadeLeave, "leave": CascadeLeave, "delete": CascadeDelete, "detach": CascadeDetach}
	for in, want := range cases {
		got, err := ParseCascadePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseCascadePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCascadePolicy("orphan"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestCollectionSchema(t *testing.T) {
	for _, c := range Collections {
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
	}
	if Collection("tags").Valid() {
		t.Fatalf("unknown collection reported valid")
	}
	if CollectionProjects.Indexed() || CollectionProfile.Indexed() || !CollectionNotes.Indexed() {
		t.Fatalf("byProject index assigned to the wrong collections")
	}
	if (Profile{ID: "other"}).RecordKey() != ProfileKey {
		t.Fatalf("profile key must be fixed")
	}
	if (Note{ProjectID: "p"}).IndexValue() != "p" || (Project{ID: "p"}).IndexValue() != "" {
		t.Fatalf("unexpected index values")
	}
}

func TestCheckRange(t *testing.T) {
	if err := CheckRange(CollectionNotes, ByProject("p1")); err != nil {
		t.Fatalf("notes byProject: %v", err)
	}
	if err := CheckRange(CollectionProjects, Range{}); err != nil {
		t.Fatalf("full range: %v", err)
	}
	if err := CheckRange(CollectionProjects, ByProject("p1")); err == nil {
		t.Fatalf("projects have no byProject index")
	}
	if err := CheckRange(CollectionNotes, Range{Index: "byTitle", Value: "x"}); err == nil {
		t.Fatalf("unknown index accepted")
	}
	if err := CheckRange("tags", Range{}); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestSliceCursor(t *testing.T) {
	ctx := context.Background()
	c := NewSliceCursor([]Entry{{Key: "a", Body: json.RawMessage(`{}`)}, {Key: "b"}})
	var keys []string
	for c.Next(ctx) {
		e := c.Entry()
		e.Body = append(e.Body, ' ')
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "a,b" || c.Err() != nil {
		t.Fatalf("keys = %v err = %v", keys, c.Err())
	}
	if c.Next(ctx) {
		t.Fatalf("exhausted cursor advanced")
	}

	c = NewSliceCursor([]Entry{{Key: "a"}})
	_ = c.Close()
	if c.Next(ctx) {
		t.Fatalf("closed cursor advanced")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if NewSliceCursor([]Entry{{Key: "a"}}).Next(cancelled) {
		t.Fatalf("cursor advanced on a cancelled context")
	}
}

func TestStoreErrors(t *testing.T) {
	cause := errors.New("disk full")
	err := Rejected("put", CollectionNotes, "n1", cause)
	if !errors.Is(err, ErrWriteRejected) || !errors.Is(err, cause) {
		t.Fatalf("Rejected lost its causes: %v", err)
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Key != "n1" {
		t.Fatalf("expected *StoreError, got %T", err)
	}
	if !strings.HasPrefix(err.Error(), "put notes/n1: ") {
		t.Fatalf("message = %q", err.Error())
	}
	if got := (&StoreError{Op: "open", Collection: CollectionFiles, Err: cause}).Error(); got != "open files: disk full" {
		t.Fatalf("message = %q", got)
	}
	if got := (&StoreError{Op: "close", Err: cause}).Error(); got != "close: disk full" {
		t.Fatalf("message = %q", got)
	}
	if !IsNotFound(&StoreError{Op: "get", Err: ErrNotFound}) || IsNotFound(cause) {
		t.Fatalf("IsNotFound misclassified")
	}
}

func TestEncodeShapes(t *testing.T) {
	raw, err := EncodeShapes(nil)
	if err != nil || string(raw) != "[]" {
		t.Fatalf("EncodeShapes(nil) = %s, %v", raw, err)
	}
	raw, err = EncodeShapes([]Shape{{Kind: "cube", Position: [3]float64{1, 2, 3}, Color: "#fff"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var back []Shape
	if err := json.Unmarshal(raw, &back); err != nil || len(back) != 1 || back[0].Position[2] != 3 {
		t.Fatalf("round trip: %v %+v", err, back)
	}

	sc := Scene{Payload: raw}
	clone := sc.Clone()
	clone.Payload[0] = '{'
	if sc.Payload[0] != '[' {
		t.Fatalf("Clone shares payload memory")
	}
}
