package analyzer

import (
	"fmt"

	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// MarkerCall is the method name of the injected marker statement. The
// downstream caching layer looks for a direct call to it when deciding
// whether a scope's output may be cached.
const MarkerCall = "noCache"

// MarkerClass is the receiver class of the marker statement. Both names must
// match for a call to count as the marker; noCache methods on other classes
// are ordinary calls.
const MarkerClass = "Cache"

// DefaultFrameworkPath is the namespace segment between the resolved prefix
// and the Cache class in the marker statement.
const DefaultFrameworkPath = "framework"

// MarkerStatement builds the marker for a resolved two-segment namespace
// prefix, e.g. `Vendor\Package\framework\Cache::noCache();`.
func MarkerStatement(namespace, frameworkPath string) string {
	if frameworkPath == "" {
		frameworkPath = DefaultFrameworkPath
	}
	return fmt.Sprintf("%s\\%s\\%s::%s();", namespace, frameworkPath, MarkerClass, MarkerCall)
}

// FixEmitter records diagnostics and, in fix mode, writes the marker
// insertion through the token stream's pending-edit ledger.
type FixEmitter struct {
	stream *token.Stream
	fix    bool
	result *types.FileResult
	marker func() (string, error) // lazy namespace resolution
}

// NewFixEmitter wires an emitter to one unit's stream and result. marker is
// invoked at most once per unit, the first time a fix is actually applied.
func NewFixEmitter(stream *token.Stream, fix bool, result *types.FileResult, marker func() (string, error)) *FixEmitter {
	return &FixEmitter{stream: stream, fix: fix, result: result, marker: marker}
}

// Emit handles one non-Clear verdict: it records the diagnostic and, in fix
// mode, inserts the marker statement right after insertAfter (the scope's
// opening token). applied=true tells the walker to stop scanning the scope;
// in check mode scanning continues so every violation gets reported.
func (e *FixEmitter) Emit(v types.Verdict, call string, scope types.ScopeKind, line, column, insertAfter int) (applied bool, err error) {
	var d types.Diagnostic
	switch v.Kind {
	case types.VerdictAlwaysDynamic:
		d.Code = types.CodeAlwaysDynamic
		d.Message = fmt.Sprintf("%s() returns a different result on every invocation; the enclosing %s cannot be cached", call, scope)
	case types.VerdictInsufficientArguments:
		d.Code = types.CodeInsufficientArgs
		d.Message = fmt.Sprintf("%s() supplies %s but is only deterministic with at least %s", call, countArgs(v.Actual), countArgs(v.Required))
	case types.VerdictUnknownArgumentCount:
		d.Code = types.CodeUnknownArgCount
		d.Message = fmt.Sprintf("%s() unpacks its arguments, so the %s it needs to be deterministic cannot be verified", call, countArgs(v.Required))
	case types.VerdictAlreadyMarked:
		// The scope already carries an explicit marker; nothing to report
		// and nothing to insert.
		return false, nil
	default:
		return false, nil
	}

	d.Call = call
	d.Line = line
	d.Column = column
	d.Scope = scope
	e.result.Diagnostics = append(e.result.Diagnostics, d)

	if !e.fix {
		return false, nil
	}
	marker, err := e.marker()
	if err != nil {
		return false, err
	}
	e.stream.InsertAfter(insertAfter, "\n"+marker)
	e.result.Fixes++
	return true, nil
}

func countArgs(n int) string {
	if n == 1 {
		return "1 argument"
	}
	return fmt.Sprintf("%d arguments", n)
}
