// Package analyzer decides, scope by scope, whether PHP code can produce
// different results on different invocations, and rewrites non-deterministic
// scopes with a marker statement the downstream caching layer honors.
package analyzer

import (
	"github.com/standardbeagle/cachemark/internal/catalogue"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// Options configures one unit's analysis.
type Options struct {
	// Fix inserts marker statements; otherwise violations are only reported.
	Fix bool
	// Namespace is the marker prefix ("Vendor\Package"). Empty means resolve
	// it from the unit's own namespace declaration when a fix needs it.
	Namespace string
	// FrameworkPath overrides the marker's framework segment.
	FrameworkPath string
	// Catalogue overrides the built-in rule set.
	Catalogue *catalogue.Catalogue
}

// Analyze runs the determinism scan over one unit's token stream.
//
// In fix mode the stream accumulates pending marker insertions; the caller
// renders it afterwards. On a namespace resolution failure no insertion has
// been recorded (resolution happens before the first fix), so the unit is
// failed without a partial rewrite.
func Analyze(stream *token.Stream, opts Options) (*types.FileResult, error) {
	cat := opts.Catalogue
	if cat == nil {
		cat = catalogue.Default()
	}

	result := &types.FileResult{}

	var (
		namespace   string
		namespaceOK bool
	)
	marker := func() (string, error) {
		if !namespaceOK {
			namespace = opts.Namespace
			if namespace == "" {
				ns, err := ResolveNamespace(stream, 0)
				if err != nil {
					return "", err
				}
				namespace = ns
			}
			namespaceOK = true
		}
		return MarkerStatement(namespace, opts.FrameworkPath), nil
	}

	emitter := NewFixEmitter(stream, opts.Fix, result, marker)
	walker := NewScopeWalker(stream, cat, emitter, result)

	if err := walker.WalkFile(); err != nil {
		result.Err = err.Error()
		return result, err
	}
	return result, nil
}
