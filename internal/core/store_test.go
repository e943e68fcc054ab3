package core

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/infra/persistence/memdb"
	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/internal/infra/persistence/sqlite"
	"creatorstudio/pkg/domain"
)

// stepClock advances one millisecond per reading so ordering is deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

type mediumFactory func(t *testing.T) domain.Medium

func media() map[string]mediumFactory {
	return map[string]mediumFactory{
		"memory": func(t *testing.T) domain.Medium { return memory.NewStore() },
		"memory-file": func(t *testing.T) domain.Medium {
			s, err := memory.Open(context.Background(), memory.NewFilePersister(filepath.Join(t.TempDir(), "store.json")))
			if err != nil {
				t.Fatalf("open snapshot store: %v", err)
			}
			return s
		},
		"memory-blob": func(t *testing.T) domain.Medium {
			s, err := memory.Open(context.Background(), memory.NewBlobPersister(blob.NewMemory(), "dataset"))
			if err != nil {
				t.Fatalf("open blob snapshot store: %v", err)
			}
			return s
		},
		"memdb": func(t *testing.T) domain.Medium {
			m, err := memdb.New()
			if err != nil {
				t.Fatalf("memdb: %v", err)
			}
			return m
		},
		"sqlite": func(t *testing.T) domain.Medium {
			m, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), sqlite.WithPageSize(2))
			if err != nil {
				t.Fatalf("sqlite: %v", err)
			}
			return m
		},
	}
}

// eachMedium runs fn against a fresh record store on every medium.
func eachMedium(t *testing.T, fn func(t *testing.T, s *Store), opts ...Option) {
	for name, factory := range media() {
		t.Run(name, func(t *testing.T) {
			m := factory(t)
			s := NewStore(m, append([]Option{WithClock(newStepClock())}, opts...)...)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestAddAssignsUniqueKeysAndEqualTimestamps(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		seen := map[string]bool{}
		for i := 0; i < 5; i++ {
			n, err := s.AddNote(ctx, Note{Title: "n"})
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if n.ID == "" || seen[n.ID] {
				t.Fatalf("duplicate or empty key %q", n.ID)
			}
			seen[n.ID] = true
			if !n.CreatedAt.Equal(n.UpdatedAt) {
				t.Fatalf("createdAt %v != updatedAt %v", n.CreatedAt, n.UpdatedAt)
			}
		}
	})
}

func TestAddAppliesDefaults(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, err := s.AddProject(ctx, Project{Title: "  "})
		if err != nil || p.Title != UntitledTitle {
			t.Fatalf("project default: %#v %v", p, err)
		}
		n, _ := s.AddNote(ctx, Note{})
		if n.Title != UntitledTitle {
			t.Fatalf("note default title %q", n.Title)
		}
		f, _ := s.AddFile(ctx, File{})
		if f.Type != "txt" || f.Name != "untitled.txt" {
			t.Fatalf("file defaults %q %q", f.Name, f.Type)
		}
		js, _ := s.AddFile(ctx, File{Type: "js"})
		if js.Name != "untitled.js" {
			t.Fatalf("file name default %q", js.Name)
		}
		sc, err := s.AddScene(ctx, Scene{})
		if err != nil || string(sc.Payload) != "[]" {
			t.Fatalf("scene default payload %s %v", sc.Payload, err)
		}
	})
}

func TestGetReturnsWhatAddReturned(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		payload, _ := domain.EncodeShapes([]domain.Shape{{Kind: "cube", Position: [3]float64{1, 0, -2}, Color: "#ff0000"}})
		added, err := s.AddScene(ctx, Scene{ProjectID: "p", Payload: payload})
		if err != nil {
			t.Fatalf("add scene: %v", err)
		}
		got, ok, err := s.GetScene(ctx, added.ID)
		if err != nil || !ok {
			t.Fatalf("get scene: ok=%v err=%v", ok, err)
		}
		if got.ID != added.ID || got.ProjectID != "p" || string(got.Payload) != string(payload) ||
			!got.CreatedAt.Equal(added.CreatedAt) || !got.UpdatedAt.Equal(added.UpdatedAt) {
			t.Fatalf("round trip mismatch: %#v vs %#v", got, added)
		}
		file, _ := s.AddFile(ctx, File{ProjectID: "p", Name: "main.js", Type: "js", Content: "console.log(1)"})
		gotFile, ok, _ := s.GetFile(ctx, file.ID)
		if !ok || gotFile.Name != "main.js" || gotFile.Content != "console.log(1)" || !gotFile.UpdatedAt.Equal(file.UpdatedAt) {
			t.Fatalf("file round trip mismatch: %#v", gotFile)
		}
		if _, ok, err := s.GetNote(ctx, "missing"); ok || err != nil {
			t.Fatalf("absent get must be (false, nil), got ok=%v err=%v", ok, err)
		}
	})
}

func TestUpdateBumpsUpdatedAtAndKeepsOtherFields(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n, _ := s.AddNote(ctx, Note{ProjectID: "p1", Title: "Plan", Content: "draft"})
		updated, ok, err := s.UpdateNote(ctx, n.ID, NotePatch{Content: domain.Ptr("final")})
		if err != nil || !ok {
			t.Fatalf("update: ok=%v err=%v", ok, err)
		}
		if !updated.UpdatedAt.After(n.UpdatedAt) {
			t.Fatalf("updatedAt did not increase: %v -> %v", n.UpdatedAt, updated.UpdatedAt)
		}
		if updated.Title != "Plan" || updated.ProjectID != "p1" || updated.Content != "final" || !updated.CreatedAt.Equal(n.CreatedAt) {
			t.Fatalf("unexpected update result %#v", updated)
		}
		stored, _, _ := s.GetNote(ctx, n.ID)
		if stored.Content != "final" || !stored.UpdatedAt.Equal(updated.UpdatedAt) {
			t.Fatalf("update not persisted: %#v", stored)
		}
		if _, ok, err := s.UpdateNote(ctx, "missing", NotePatch{Title: domain.Ptr("x")}); ok || err != nil {
			t.Fatalf("absent update must be (false, nil), got ok=%v err=%v", ok, err)
		}
		if _, ok, _ := s.GetNote(ctx, "missing"); ok {
			t.Fatalf("update of absent key must not create it")
		}
	})
}

func TestUpdateStrictlyIncreasesWithStoppedClock(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(memory.NewStore(), WithClock(frozenClock{t: at}))
	ctx := context.Background()
	f, _ := s.AddFile(ctx, File{Name: "a.md", Type: "md"})
	one, _, _ := s.UpdateFile(ctx, f.ID, FilePatch{Content: domain.Ptr("1")})
	two, _, _ := s.UpdateFile(ctx, f.ID, FilePatch{Content: domain.Ptr("2")})
	if !one.UpdatedAt.After(f.UpdatedAt) || !two.UpdatedAt.After(one.UpdatedAt) {
		t.Fatalf("timestamps not strictly increasing: %v %v %v", f.UpdatedAt, one.UpdatedAt, two.UpdatedAt)
	}
	if two.Name != "a.md" || two.Type != "md" {
		t.Fatalf("unpatched fields changed: %#v", two)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, _ := s.AddProject(ctx, Project{Title: "x"})
		for i := 0; i < 2; i++ {
			if err := s.DeleteProject(ctx, p.ID); err != nil {
				t.Fatalf("delete #%d: %v", i+1, err)
			}
		}
		if _, ok, _ := s.GetProject(ctx, p.ID); ok {
			t.Fatalf("project still present")
		}
		for _, del := range []func(context.Context, string) error{s.DeleteNote, s.DeleteFile, s.DeleteScene} {
			if err := del(ctx, "never-existed"); err != nil {
				t.Fatalf("delete of absent key: %v", err)
			}
		}
	})
}

func TestByProjectNeverLeaks(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		a, _ := s.AddProject(ctx, Project{Title: "A"})
		b, _ := s.AddProject(ctx, Project{Title: "B"})
		for i := 0; i < 3; i++ {
			_, _ = s.AddNote(ctx, Note{ProjectID: a.ID, Title: "a"})
			_, _ = s.AddNote(ctx, Note{ProjectID: b.ID, Title: "b"})
			_, _ = s.AddFile(ctx, File{ProjectID: b.ID})
			_, _ = s.AddScene(ctx, Scene{ProjectID: a.ID})
		}
		_, _ = s.AddNote(ctx, Note{Title: "global"})

		notes, err := s.ListNotes(ctx, ListOptions{ProjectID: a.ID})
		if err != nil || len(notes) != 3 {
			t.Fatalf("expected 3 notes for A, got %d %v", len(notes), err)
		}
		for _, n := range notes {
			if n.ProjectID != a.ID {
				t.Fatalf("note %s from project %q leaked into A", n.ID, n.ProjectID)
			}
		}
		if files, _ := s.ListFiles(ctx, ListOptions{ProjectID: a.ID}); len(files) != 0 {
			t.Fatalf("files leaked into A: %d", len(files))
		}
		if scenes, _ := s.ListScenes(ctx, ListOptions{ProjectID: b.ID}); len(scenes) != 0 {
			t.Fatalf("scenes leaked into B: %d", len(scenes))
		}
		all, _ := s.ListNotes(ctx, ListOptions{})
		if len(all) != 7 {
			t.Fatalf("expected 7 notes in total, got %d", len(all))
		}
	})
}

func TestNotesPinnedFirstThenNewest(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n1, _ := s.AddNote(ctx, Note{Title: "N1", Pinned: true})
		n2, _ := s.AddNote(ctx, Note{Title: "N2"})
		n3, _ := s.AddNote(ctx, Note{Title: "N3"})
		if !n2.UpdatedAt.After(n1.UpdatedAt) {
			t.Fatalf("test clock must advance")
		}
		got, err := s.ListNotes(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{n1.ID, n3.ID, n2.ID}
		for i, id := range want {
			if got[i].ID != id {
				t.Fatalf("position %d: got %s want %s", i, got[i].Title, id)
			}
		}
	})
}

func TestFilesAndScenesNewestFirst(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		f1, _ := s.AddFile(ctx, File{Name: "a.js"})
		f2, _ := s.AddFile(ctx, File{Name: "b.js"})
		_, _, _ = s.UpdateFile(ctx, f1.ID, FilePatch{Content: domain.Ptr("x")})
		files, _ := s.ListFiles(ctx, ListOptions{})
		if len(files) != 2 || files[0].ID != f1.ID || files[1].ID != f2.ID {
			t.Fatalf("unexpected file order %#v", files)
		}
		s1, _ := s.AddScene(ctx, Scene{})
		s2, _ := s.AddScene(ctx, Scene{})
		scenes, _ := s.ListScenes(ctx, ListOptions{})
		if len(scenes) != 2 || scenes[0].ID != s2.ID || scenes[1].ID != s1.ID {
			t.Fatalf("unexpected scene order")
		}
	})
}

func TestTextQueryMatchesTitleAndContent(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, _ = s.AddNote(ctx, Note{Title: "Shopping", Content: "Milk and EGGS"})
		_, _ = s.AddNote(ctx, Note{Title: "Eggplant recipe"})
		_, _ = s.AddNote(ctx, Note{Title: "Other"})
		got, _ := s.ListNotes(ctx, ListOptions{Query: "  eGg "})
		if len(got) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(got))
		}
		_, _ = s.AddFile(ctx, File{Name: "index.html", Content: "<canvas>"})
		files, _ := s.ListFiles(ctx, ListOptions{Query: "CANVAS"})
		if len(files) != 1 {
			t.Fatalf("expected file content match, got %d", len(files))
		}
		if none, _ := s.ListNotes(ctx, ListOptions{Query: "zzz"}); len(none) != 0 {
			t.Fatalf("expected no match")
		}
	})
}

func TestRoadmapScenario(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		roadmap, err := s.AddNote(ctx, Note{Title: "Roadmap", Content: "v1"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		notes, _ := s.ListNotes(ctx, ListOptions{})
		if len(notes) != 1 || notes[0].Title != "Roadmap" {
			t.Fatalf("expected exactly the roadmap note, got %#v", notes)
		}
		_, _ = s.AddNote(ctx, Note{Title: "Newer"})
		if _, ok, err := s.UpdateNote(ctx, roadmap.ID, NotePatch{Pinned: domain.Ptr(true)}); !ok || err != nil {
			t.Fatalf("pin: ok=%v err=%v", ok, err)
		}
		_, _ = s.AddNote(ctx, Note{Title: "Newest"})
		notes, _ = s.ListNotes(ctx, ListOptions{})
		if len(notes) != 3 || notes[0].ID != roadmap.ID {
			t.Fatalf("pinned roadmap must come first, got %#v", notes)
		}
		for _, n := range notes {
			_ = s.DeleteNote(ctx, n.ID)
		}
		if notes, _ = s.ListNotes(ctx, ListOptions{}); len(notes) != 0 {
			t.Fatalf("expected empty list, got %d", len(notes))
		}
	})
}

func TestProfilePartialPatches(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		empty, err := s.GetProfile(ctx)
		if err != nil || empty.DisplayName != "" || empty.Bio != "" || empty.ID != domain.ProfileKey {
			t.Fatalf("unexpected default profile %#v %v", empty, err)
		}
		if _, err := s.SaveProfile(ctx, ProfilePatch{DisplayName: domain.Ptr("Ada")}); err != nil {
			t.Fatalf("save: %v", err)
		}
		p, _ := s.GetProfile(ctx)
		if p.DisplayName != "Ada" || p.Bio != "" {
			t.Fatalf("unexpected profile %#v", p)
		}
		_, _ = s.SaveProfile(ctx, ProfilePatch{Bio: domain.Ptr("Engines"), Avatar: []byte{1, 2}})
		_, _ = s.SaveProfile(ctx, ProfilePatch{})
		p, _ = s.GetProfile(ctx)
		if p.DisplayName != "Ada" || p.Bio != "Engines" || len(p.Avatar) != 2 {
			t.Fatalf("partial patch dropped fields: %#v", p)
		}
	})
}

func TestEnsureDefaultProject(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, err := s.EnsureDefaultProject(ctx)
		if err != nil || p.Title != DefaultProjectTitle {
			t.Fatalf("default project: %#v %v", p, err)
		}
		again, _ := s.EnsureDefaultProject(ctx)
		if again.ID != p.ID {
			t.Fatalf("expected existing project to be reused")
		}
		_, _ = s.AddProject(ctx, Project{Title: "Later"})
		projects, _ := s.ListProjects(ctx)
		if len(projects) != 2 || projects[0].ID != p.ID {
			t.Fatalf("projects must be oldest first: %#v", projects)
		}
	})
}

func seedProject(t *testing.T, s *Store) (Project, Note, File, Scene) {
	t.Helper()
	ctx := context.Background()
	p, _ := s.AddProject(ctx, Project{Title: "Game"})
	n, _ := s.AddNote(ctx, Note{ProjectID: p.ID, Title: "ideas"})
	f, _ := s.AddFile(ctx, File{ProjectID: p.ID, Name: "main.js"})
	sc, _ := s.AddScene(ctx, Scene{ProjectID: p.ID})
	return p, n, f, sc
}

func TestCascadeLeaveKeepsOrphans(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, n, _, _ := seedProject(t, s)
		_ = s.DeleteProject(ctx, p.ID)
		got, ok, _ := s.GetNote(ctx, n.ID)
		if !ok || got.ProjectID != p.ID {
			t.Fatalf("leave policy must keep the dangling reference: %#v", got)
		}
		if still, _ := s.ListNotes(ctx, ListOptions{ProjectID: p.ID}); len(still) != 1 {
			t.Fatalf("orphan must stay reachable by its project id")
		}
	})
}

func TestCascadeDeleteRemovesChildren(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, n, f, sc := seedProject(t, s)
		other, _ := s.AddNote(ctx, Note{Title: "unrelated"})
		if err := s.DeleteProject(ctx, p.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, _ := s.GetNote(ctx, n.ID); ok {
			t.Fatalf("note survived")
		}
		if _, ok, _ := s.GetFile(ctx, f.ID); ok {
			t.Fatalf("file survived")
		}
		if _, ok, _ := s.GetScene(ctx, sc.ID); ok {
			t.Fatalf("scene survived")
		}
		if _, ok, _ := s.GetNote(ctx, other.ID); !ok {
			t.Fatalf("unrelated note removed")
		}
	}, WithCascade(CascadeDelete))
}

func TestCascadeDetachMovesChildrenToGlobal(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, n, f, sc := seedProject(t, s)
		_ = s.DeleteProject(ctx, p.ID)
		gotNote, _, _ := s.GetNote(ctx, n.ID)
		gotFile, _, _ := s.GetFile(ctx, f.ID)
		gotScene, _, _ := s.GetScene(ctx, sc.ID)
		if gotNote.ProjectID != "" || gotFile.ProjectID != "" || gotScene.ProjectID != "" {
			t.Fatalf("children not detached: %q %q %q", gotNote.ProjectID, gotFile.ProjectID, gotScene.ProjectID)
		}
		if !gotNote.UpdatedAt.After(n.UpdatedAt) {
			t.Fatalf("detach is an update and must bump updatedAt")
		}
		if left, _ := s.ListNotes(ctx, ListOptions{ProjectID: p.ID}); len(left) != 0 {
			t.Fatalf("index still references deleted project")
		}
	}, WithCascade(CascadeDetach))
}

func TestIteratorsAreLazyAndRestartable(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, _ = s.AddFile(ctx, File{Name: "f"})
		}
		seq := s.Files(ctx, ListOptions{})
		count := func(limit int) int {
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("iterate: %v", err)
				}
				n++
				if n == limit {
					break
				}
			}
			return n
		}
		if got := count(2); got != 2 {
			t.Fatalf("early stop yielded %d", got)
		}
		if got := count(-1); got != 5 {
			t.Fatalf("restart yielded %d", got)
		}
	})
}

func TestValidationRejectsInvalidRecords(t *testing.T) {
	s := NewStore(memory.NewStore())
	ctx := context.Background()
	_, err := s.AddScene(ctx, Scene{Payload: json.RawMessage("{broken")})
	if !errors.Is(err, domain.ErrWriteRejected) {
		t.Fatalf("expected rejected scene, got %v", err)
	}
	if scenes, _ := s.ListScenes(ctx, ListOptions{}); len(scenes) != 0 {
		t.Fatalf("rejected record was stored")
	}
}

func TestLongFileTypeIsKept(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		kind := "this-type-name-is-far-longer-than-thirty-two-chars"
		f, err := s.AddFile(ctx, File{Type: kind})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if f.Type != kind || f.Name != "untitled."+kind {
			t.Fatalf("unexpected file %#v", f)
		}
	})
}

func TestClosedStoreFails(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_ = s.Close()
		if _, err := s.AddNote(ctx, Note{}); !errors.Is(err, domain.ErrStoreClosed) {
			t.Fatalf("expected ErrStoreClosed, got %v", err)
		}
		if _, err := s.ListNotes(ctx, ListOptions{}); !errors.Is(err, domain.ErrStoreClosed) {
			t.Fatalf("expected ErrStoreClosed from list, got %v", err)
		}
	})
}

func TestSequentialOperationsObserveEachOther(t *testing.T) {
	eachMedium(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n, _ := s.AddNote(ctx, Note{Title: "a"})
		for i := 0; i < 10; i++ {
			title := string(rune('a' + i))
			if _, _, err := s.UpdateNote(ctx, n.ID, NotePatch{Title: &title}); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, _, _ := s.GetNote(ctx, n.ID)
			if got.Title != title {
				t.Fatalf("read %q after writing %q", got.Title, title)
			}
		}
	})
}
