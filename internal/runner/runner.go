// Package runner orchestrates analysis across files: discovery by glob,
// parallel per-unit analysis, rewriting fixed units, and skipping units whose
// content hash is unchanged since the previous run. Each unit's analysis is
// independent; the catalogue is the only shared object and it is read-only.
package runner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/cachemark/internal/analyzer"
	"github.com/standardbeagle/cachemark/internal/catalogue"
	"github.com/standardbeagle/cachemark/internal/config"
	"github.com/standardbeagle/cachemark/internal/lexer"
	"github.com/standardbeagle/cachemark/internal/types"
)

type Runner struct {
	cfg   *config.Config
	cat   *catalogue.Catalogue // built once, shared read-only by all workers
	fix   bool
	strip bool
	diff  bool
	root  string

	mu     sync.Mutex
	hashes map[string]uint64 // path -> xxhash of last-seen content
}

// New builds a runner rooted at root. fix enables in-place rewriting; strip
// removes existing markers before re-analysis.
func New(cfg *config.Config, root string, fix, strip bool) *Runner {
	return &Runner{
		cfg:    cfg,
		cat:    cfg.Catalogue(),
		fix:    fix,
		strip:  strip,
		root:   root,
		hashes: make(map[string]uint64),
	}
}

// SetDiff switches fix mode to a dry run: rewritten units are returned in
// FileResult.Output instead of being written to disk.
func (r *Runner) SetDiff(diff bool) {
	r.diff = diff
}

// Discover walks the root and returns every file matching the include globs
// and none of the exclude globs, sorted for stable output.
func (r *Runner) Discover() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules":
				if path != r.root {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return relErr
		}
		if r.matches(rel) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// matches applies the include/exclude globs to a root-relative path.
func (r *Runner) matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	included := false
	for _, pattern := range r.cfg.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range r.cfg.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}

// Run analyzes the given files in parallel. Unit failures land in the unit's
// FileResult rather than cancelling sibling analyses; only a cancelled
// context aborts the batch.
func (r *Runner) Run(ctx context.Context, paths []string) ([]*types.FileResult, error) {
	results := make([]*types.FileResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.jobs())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.processFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) jobs() int {
	if r.cfg.Jobs > 0 {
		return r.cfg.Jobs
	}
	return runtime.NumCPU()
}

// processFile runs the full per-unit pipeline: read, change gate, lex,
// optional strip, analyze, and in fix mode write the rewritten unit back.
func (r *Runner) processFile(path string) *types.FileResult {
	result := &types.FileResult{Path: path}

	src, err := os.ReadFile(path)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	sum := xxhash.Sum64(src)
	if r.unchanged(path, sum) {
		result.Skipped = true
		return result
	}

	stream, err := lexer.Lex(src)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	stripped := 0
	if r.strip {
		out, n := analyzer.StripMarkers(stream)
		if n > 0 {
			stream, err = lexer.Lex(out)
			if err != nil {
				result.Err = err.Error()
				return result
			}
			stripped = n
		}
	}

	result, err = analyzer.Analyze(stream, analyzer.Options{
		Fix:           r.fix,
		Namespace:     r.cfg.Namespace,
		FrameworkPath: r.cfg.FrameworkPath,
		Catalogue:     r.cat,
	})
	result.Path = path
	result.Stripped = stripped
	if err != nil {
		// namespace failures and the like: unit failed, nothing written
		r.remember(path, sum)
		return result
	}

	if r.fix && (result.Fixes > 0 || stripped > 0) {
		out := stream.Render()
		if r.diff {
			// dry run: hand the rewrite back and leave the unit untouched,
			// so a later real fix still sees it as changed
			result.Output = out
			return result
		}
		if writeErr := writeInPlace(path, out); writeErr != nil {
			result.Err = writeErr.Error()
			return result
		}
		sum = xxhash.Sum64(out)
	}
	r.remember(path, sum)
	return result
}

func (r *Runner) unchanged(path string, sum uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, seen := r.hashes[path]
	return seen && prev == sum
}

func (r *Runner) remember(path string, sum uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[path] = sum
}

// writeInPlace rewrites path keeping its permission bits.
func writeInPlace(path string, content []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, content, mode)
}
