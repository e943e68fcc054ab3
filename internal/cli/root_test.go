package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creatorstudio/internal/adapters/exports"
	"creatorstudio/internal/blob"
	"creatorstudio/internal/config"
	"creatorstudio/internal/core"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "project", "note", "file", "scene", "profile", "plan", "export", "cache"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

// isolate points storage at a temp dir and disables the offline cache.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CREATORSTUDIO_STORAGE_DRIVER", "sqlite")
	t.Setenv("CREATORSTUDIO_STORAGE_SQLITE_PATH", filepath.Join(dir, "studio.db"))
	t.Setenv("CREATORSTUDIO_BLOB_DRIVER", "fs")
	t.Setenv("CREATORSTUDIO_BLOB_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("CREATORSTUDIO_CACHE_ENABLED", "false")
	t.Setenv("CREATORSTUDIO_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "%v", args)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestRecordsPersistAcrossInvocations(t *testing.T) {
	isolate(t)

	p := runJSON[core.Project](t, "project", "add", "Bees")
	assert.Equal(t, "Bees", p.Title)
	renamed := runJSON[core.Project](t, "project", "rename", p.ID, "Hive")
	assert.Equal(t, "Hive", renamed.Title)
	assert.Len(t, runJSON[[]core.Project](t, "project", "list"), 1)

	n := runJSON[core.Note](t, "note", "add", "--project", p.ID, "--title", "Roadmap", "--content", "ship")
	runJSON[core.Note](t, "note", "add", "--title", "Global")
	assert.Len(t, runJSON[[]core.Note](t, "note", "list", "--project", p.ID), 1)
	assert.Len(t, runJSON[[]core.Note](t, "note", "list", "-q", "road"), 1)

	pinned := runJSON[core.Note](t, "note", "update", n.ID, "--pinned")
	assert.True(t, pinned.Pinned)
	assert.Equal(t, "ship", pinned.Content, "unchanged flags keep their values")

	f := runJSON[core.File](t, "file", "add", "--name", "main.js", "--type", "js", "--content", "go()")
	assert.Equal(t, "go()", runJSON[core.File](t, "file", "show", f.ID).Content)
	_, err := run(t, "file", "rm", f.ID)
	require.NoError(t, err)

	sc := runJSON[core.Scene](t, "scene", "add", "--project", p.ID)
	assert.JSONEq(t, `[]`, string(sc.Payload))
	assert.Len(t, runJSON[[]core.Scene](t, "scene", "list", "--project", p.ID), 1)

	prof := runJSON[core.Profile](t, "profile", "set", "--name", "Ada")
	assert.Equal(t, "Ada", prof.DisplayName)
	assert.Equal(t, "Ada", runJSON[core.Profile](t, "profile", "show").DisplayName)
}

func TestMissingRecordsExitWithCommandError(t *testing.T) {
	isolate(t)
	_, err := run(t, "project", "show", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "note", "update", "nope", "--title", "x")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "cache", "status")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "cache is disabled")
}

func TestBadConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("CREATORSTUDIO_STORAGE_DRIVER", "tape")
	_, err := run(t, "project", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPlanFallsBackWithoutSettings(t *testing.T) {
	isolate(t)
	res := runJSON[planner.Result](t, "plan", "a", "rhythm", "game")
	assert.Equal(t, planner.SourceFallback, res.Source)
	assert.Equal(t, planner.Fallback("a rhythm game"), res.Text)

	st := runJSON[planner.Settings](t, "plan", "settings", "set", "--api-key", "sk-1", "--model", "m")
	assert.Equal(t, "****", st.APIKey)
	st = runJSON[planner.Settings](t, "plan", "settings", "show")
	assert.Equal(t, "m", st.Model)
}

func TestExportCommandWaitsForResult(t *testing.T) {
	dir := isolate(t)
	p := runJSON[core.Project](t, "project", "add", "Bees")
	runJSON[core.Note](t, "note", "add", "--project", p.ID, "--title", "n")

	rec := runJSON[exports.Record](t, "export", "--project", p.ID, "--format", "json")
	require.Equal(t, exports.StatusSucceeded, rec.Status, rec.Error)
	require.Len(t, rec.Artifacts, 1)

	data, err := os.ReadFile(filepath.Join(dir, "blobs", filepath.FromSlash(rec.Artifacts[0].Key)))
	require.NoError(t, err)
	var b exports.Bundle
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Len(t, b.Notes, 1)

	_, err = run(t, "export", "--project", "missing")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCacheInstallFromConfigFile(t *testing.T) {
	dir := isolate(t)
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "asset %s", r.URL.Path)
	}))
	t.Cleanup(site.Close)

	cfgPath := filepath.Join(dir, "creatorstudio.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
cache:
  enabled: true
  manifest:
    origin: %s
    assets: ["./", "./app.js"]
    third_party: []
    allow_prefixes: []
    version: test
`, site.URL)), 0o600))
	t.Setenv("CREATORSTUDIO_CACHE_ENABLED", "")

	st := runJSON[offline.Status](t, "--config", cfgPath, "cache", "install")
	assert.True(t, st.Active)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, []string{st.Generation}, st.Generations)

	st = runJSON[offline.Status](t, "-c", cfgPath, "cache", "status")
	assert.Empty(t, st.Generation, "a new process has not installed or resumed yet")
	assert.Len(t, st.Generations, 1)
}

func TestPlannerClientGoesThroughCache(t *testing.T) {
	cfg := config.PlannerConfig{Timeout: time.Second}
	direct := plannerClient(cfg, nil)
	assert.Nil(t, direct.Transport)
	assert.Equal(t, time.Second, direct.Timeout)

	cache, err := offline.New(offline.DefaultManifest(config.DefaultAssetOrigin), blob.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	via := plannerClient(cfg, cache)
	assert.Same(t, cache, via.Transport)
}
