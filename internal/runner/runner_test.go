package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/cachemark/internal/config"
	"github.com/standardbeagle/cachemark/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const dynamicUnit = "<?php\nnamespace Vendor\\Package;\n\necho time();\n"
const cleanUnit = "<?php\necho date('Y', $ts);\n"

func TestDiscover_GlobsAndSkips(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.php":           cleanUnit,
		"src/a.php":           cleanUnit,
		"src/view.phtml":      cleanUnit,
		"src/notes.txt":       "not php",
		"vendor/dep/lib.php":  cleanUnit,
		"src/generated/g.php": cleanUnit,
	})

	cfg := config.Default()
	cfg.Exclude = append(cfg.Exclude, "src/generated/**")
	r := New(cfg, root, false, false)

	paths, err := r.Discover()
	require.NoError(t, err)

	var rels []string
	for _, p := range paths {
		rel, relErr := filepath.Rel(root, p)
		require.NoError(t, relErr)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"index.php", "src/a.php", "src/view.phtml"}, rels)
}

func TestRun_CheckReportsWithoutRewriting(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": dynamicUnit, "b.php": cleanUnit})
	r := New(config.Default(), root, false, false)

	paths, err := r.Discover()
	require.NoError(t, err)
	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]int{}
	for _, res := range results {
		byName[filepath.Base(res.Path)] = len(res.Diagnostics)
	}
	assert.Equal(t, 1, byName["a.php"])
	assert.Equal(t, 0, byName["b.php"])

	content, err := os.ReadFile(filepath.Join(root, "a.php"))
	require.NoError(t, err)
	assert.Equal(t, dynamicUnit, string(content), "check mode must not rewrite")
}

func TestRun_FixRewritesInPlace(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": dynamicUnit})
	r := New(config.Default(), root, true, false)

	paths, err := r.Discover()
	require.NoError(t, err)
	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Fixes)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), `Vendor\Package\framework\Cache::noCache();`)

	// a second pass over the rewritten unit finds nothing new
	r2 := New(config.Default(), root, true, false)
	results, err = r2.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Fixes)
	assert.Empty(t, results[0].Diagnostics)
}

func TestRun_DiffModeLeavesFilesUntouched(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": dynamicUnit})
	r := New(config.Default(), root, true, false)
	r.SetDiff(true)

	paths, err := r.Discover()
	require.NoError(t, err)
	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Fixes)
	assert.Contains(t, string(results[0].Output), `Vendor\Package\framework\Cache::noCache();`)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, dynamicUnit, string(content), "diff mode must not rewrite")

	// the dry run must not arm the change gate: a real fix pass afterwards
	// still rewrites the unit
	r.SetDiff(false)
	results, err = r.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, 1, results[0].Fixes)

	content, err = os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "noCache")
}

func TestRun_StripRemovesStaleMarkers(t *testing.T) {
	// the scope was marked once but no longer calls anything dynamic
	stale := "<?php\nnamespace Vendor\\Package;\nVendor\\Package\\framework\\Cache::noCache();\n\necho 'static';\n"
	root := writeTree(t, map[string]string{"a.php": stale})

	r := New(config.Default(), root, true, true)
	paths, err := r.Discover()
	require.NoError(t, err)
	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Stripped)
	assert.Equal(t, 0, results[0].Fixes)

	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.NotContains(t, string(content), "noCache")
}

func TestRun_NamespaceFailureIsReportedPerUnit(t *testing.T) {
	root := writeTree(t, map[string]string{
		"bad.php":  "<?php\necho time();\n", // no namespace to resolve
		"good.php": dynamicUnit,
	})
	r := New(config.Default(), root, true, false)

	paths, err := r.Discover()
	require.NoError(t, err)
	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)

	byName := map[string]string{}
	fixes := 0
	for _, res := range results {
		byName[filepath.Base(res.Path)] = res.Err
		fixes += res.Fixes
	}
	assert.Contains(t, byName["bad.php"], "namespace")
	assert.Empty(t, byName["good.php"])
	assert.Equal(t, 1, fixes, "sibling units still get fixed")

	content, err := os.ReadFile(filepath.Join(root, "bad.php"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "noCache", "failed unit must not be partially fixed")
}

func TestRun_UnchangedContentIsSkipped(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": cleanUnit})
	r := New(config.Default(), root, false, false)

	paths, err := r.Discover()
	require.NoError(t, err)

	results, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.False(t, results[0].Skipped)

	results, err = r.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped, "second pass over identical content skips")
}

func TestWatch_StopsWithContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": cleanUnit})
	r := New(config.Default(), root, false, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, func(*types.FileResult) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancellation")
	}
}

func TestMatches_RelativePatterns(t *testing.T) {
	cfg := config.Default()
	cfg.Include = []string{"src/**/*.php"}
	cfg.Exclude = []string{"**/skip/**"}
	r := New(cfg, "/proj", false, false)

	assert.True(t, r.matches(filepath.FromSlash("src/deep/a.php")))
	assert.False(t, r.matches("a.php"))
	assert.False(t, r.matches(filepath.FromSlash("src/skip/a.php")))
}
