package analyzer

import (
	"strings"
	"testing"

	cmerrors "github.com/standardbeagle/cachemark/internal/errors"
	"github.com/standardbeagle/cachemark/internal/lexer"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

const testMarker = `Vendor\Package\framework\Cache::noCache();`

func analyze(t *testing.T, src string, opts Options) (*types.FileResult, *token.Stream) {
	t.Helper()
	stream, err := lexer.Lex([]byte(src))
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	result, err := Analyze(stream, opts)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	return result, stream
}

func fixOpts() Options {
	return Options{Fix: true, Namespace: `Vendor\Package`}
}

func TestWalker_FileScopeAlwaysDynamic(t *testing.T) {
	src := "<?php\necho time();\n"
	result, stream := analyze(t, src, fixOpts())

	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(result.Diagnostics))
	}
	d := result.Diagnostics[0]
	if d.Code != types.CodeAlwaysDynamic {
		t.Errorf("expected code %s, got %s", types.CodeAlwaysDynamic, d.Code)
	}
	if d.Call != "time" {
		t.Errorf("expected call time, got %s", d.Call)
	}
	if result.Fixes != 1 {
		t.Errorf("expected 1 fix, got %d", result.Fixes)
	}

	out := string(stream.Render())
	if !strings.HasPrefix(out, "<?php\n"+testMarker) {
		t.Errorf("marker not at file start:\n%s", out)
	}
}

func TestWalker_ThresholdSatisfiedIsClean(t *testing.T) {
	src := "<?php\necho date('Y-m-d', $ts);\n"
	result, stream := analyze(t, src, fixOpts())
	if !result.Clean() {
		t.Errorf("expected clean result, got %+v", result.Diagnostics)
	}
	if got := string(stream.Render()); got != src {
		t.Errorf("clean unit must be unchanged, got:\n%s", got)
	}
}

func TestWalker_InsufficientArguments(t *testing.T) {
	result, _ := analyze(t, "<?php\necho date('Y');\n", Options{})
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(result.Diagnostics))
	}
	d := result.Diagnostics[0]
	if d.Code != types.CodeInsufficientArgs {
		t.Errorf("expected code %s, got %s", types.CodeInsufficientArgs, d.Code)
	}
	if !strings.Contains(d.Message, "1 argument ") {
		t.Errorf("message should use singular wording: %s", d.Message)
	}
	if !strings.Contains(d.Message, "2 arguments") {
		t.Errorf("message should name the required count: %s", d.Message)
	}
}

func TestWalker_UnpackedArguments(t *testing.T) {
	result, _ := analyze(t, "<?php\necho gmmktime(...$parts);\n", Options{})
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(result.Diagnostics))
	}
	d := result.Diagnostics[0]
	if d.Code != types.CodeUnknownArgCount {
		t.Errorf("expected code %s, got %s", types.CodeUnknownArgCount, d.Code)
	}
	if !strings.Contains(d.Message, "6 arguments") {
		t.Errorf("message should name the unverifiable requirement: %s", d.Message)
	}
}

func TestWalker_NestedRoutineGetsItsOwnMarker(t *testing.T) {
	src := "<?php\nnamespace Vendor\\Package;\n\n" +
		"function roll()\n{\n    return mt_rand();\n}\n\necho 'static';\n"
	result, stream := analyze(t, src, Options{Fix: true})

	if result.Fixes != 1 {
		t.Fatalf("expected exactly 1 fix, got %d", result.Fixes)
	}
	out := string(stream.Render())
	if strings.Count(out, "Cache::noCache();") != 1 {
		t.Fatalf("expected exactly one marker:\n%s", out)
	}
	markerAt := strings.Index(out, testMarker)
	bodyAt := strings.Index(out, "function roll()")
	if markerAt < bodyAt {
		t.Errorf("marker must sit inside the routine, not at file start:\n%s", out)
	}
	if result.Diagnostics[0].Scope != types.ScopeRoutine {
		t.Errorf("expected routine scope, got %s", result.Diagnostics[0].Scope)
	}
}

func TestWalker_ClosureDynamismStaysInClosure(t *testing.T) {
	src := "<?php\nnamespace Vendor\\Package;\n\n" +
		"function build()\n{\n" +
		"    $stamp = function () {\n        return time();\n    };\n" +
		"    return $stamp;\n}\n"
	result, stream := analyze(t, src, Options{Fix: true})

	if result.Fixes != 1 {
		t.Fatalf("expected 1 fix, got %d", result.Fixes)
	}
	if result.Diagnostics[0].Scope != types.ScopeClosure {
		t.Errorf("expected closure scope, got %s", result.Diagnostics[0].Scope)
	}
	out := string(stream.Render())
	// marker right after the closure's brace, nothing after build's own brace
	closureBrace := strings.Index(out, "function () {")
	markerAt := strings.Index(out, testMarker)
	if markerAt < closureBrace {
		t.Errorf("marker must be inside the closure:\n%s", out)
	}
}

func TestWalker_FixStopsScopeCheckIsExhaustive(t *testing.T) {
	src := "<?php\necho time();\necho rand();\n"

	checked, _ := analyze(t, src, Options{})
	if len(checked.Diagnostics) != 2 {
		t.Errorf("check mode: expected 2 diagnostics, got %d", len(checked.Diagnostics))
	}

	fixed, stream := analyze(t, src, fixOpts())
	if len(fixed.Diagnostics) != 1 {
		t.Errorf("fix mode: expected 1 diagnostic before the early exit, got %d", len(fixed.Diagnostics))
	}
	if fixed.Fixes != 1 {
		t.Errorf("fix mode: expected 1 fix, got %d", fixed.Fixes)
	}
	if strings.Count(string(stream.Render()), "Cache::noCache();") != 1 {
		t.Error("fix mode must insert at most one marker per scope")
	}
}

func TestWalker_FixIsIdempotent(t *testing.T) {
	src := "<?php\nnamespace Vendor\\Package;\n\necho microtime();\n"
	first, stream := analyze(t, src, Options{Fix: true})
	if first.Fixes != 1 {
		t.Fatalf("first pass: expected 1 fix, got %d", first.Fixes)
	}

	second, stream2 := analyze(t, string(stream.Render()), Options{Fix: true})
	if second.Fixes != 0 {
		t.Errorf("second pass: expected 0 fixes, got %d", second.Fixes)
	}
	if len(second.Diagnostics) != 0 {
		t.Errorf("second pass: expected 0 diagnostics, got %d", len(second.Diagnostics))
	}
	if stream2.InsertionCount() != 0 {
		t.Errorf("second pass: expected no pending insertions")
	}
}

func TestWalker_ExplicitMarkerStopsScope(t *testing.T) {
	src := "<?php\nnamespace Vendor\\Package;\n\n" +
		testMarker + "\necho time();\necho rand();\n"
	result, _ := analyze(t, src, Options{})
	if len(result.Diagnostics) != 0 {
		t.Errorf("marked scope must produce no diagnostics, got %d", len(result.Diagnostics))
	}
}

func TestWalker_UnrelatedNoCacheIsNotTheMarker(t *testing.T) {
	// a noCache method on any other receiver is an ordinary call and must
	// not stop the scan
	src := "<?php\nOther::noCache();\necho time();\n"
	result, _ := analyze(t, src, Options{})
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic past Other::noCache(), got %d", len(result.Diagnostics))
	}
	if result.Diagnostics[0].Call != "time" {
		t.Errorf("expected call time, got %s", result.Diagnostics[0].Call)
	}

	src = "<?php\n$c->noCache();\necho rand();\n"
	result, _ = analyze(t, src, Options{})
	if len(result.Diagnostics) != 1 {
		t.Errorf("expected 1 diagnostic past $c->noCache(), got %d", len(result.Diagnostics))
	}

	src = "<?php\nOther::noCache();\necho time();\n"
	result, stream := analyze(t, src, fixOpts())
	if result.Fixes != 1 {
		t.Errorf("expected 1 fix, got %d", result.Fixes)
	}
	if out := string(stream.Render()); !strings.Contains(out, testMarker) {
		t.Errorf("marker missing from fixed output:\n%s", out)
	}
}

func TestWalker_MarkerInFileDoesNotShieldRoutine(t *testing.T) {
	src := "<?php\nnamespace Vendor\\Package;\n\n" +
		testMarker + "\n" +
		"function roll()\n{\n    return rand();\n}\n"
	result, _ := analyze(t, src, Options{})
	// file scope stops at its own marker, but scanning never reached the
	// routine, which is the documented early-exit tradeoff
	if len(result.Diagnostics) != 0 {
		t.Errorf("expected 0 diagnostics after file-scope marker, got %d", len(result.Diagnostics))
	}
}

func TestWalker_MethodAndStaticCallsIgnored(t *testing.T) {
	src := "<?php\n$clock->time();\nClock::time();\n$c?->rand();\nnew DateTime();\n"
	result, _ := analyze(t, src, Options{})
	if len(result.Diagnostics) != 0 {
		t.Errorf("receiver-qualified calls must be ignored, got %d diagnostics", len(result.Diagnostics))
	}
}

func TestWalker_FullyQualifiedCallIsClassified(t *testing.T) {
	result, _ := analyze(t, "<?php\necho \\time();\n", Options{})
	if len(result.Diagnostics) != 1 {
		t.Errorf("\\time() must classify like time(), got %d diagnostics", len(result.Diagnostics))
	}
}

func TestWalker_MarkerPlacedAfterNamespace(t *testing.T) {
	src := "<?php\n\nnamespace Vendor\\Package;\n\nuse Other\\Thing;\n\necho time();\n"
	_, stream := analyze(t, src, Options{Fix: true})
	out := string(stream.Render())

	nsAt := strings.Index(out, "namespace Vendor\\Package;")
	useAt := strings.Index(out, "use Other\\Thing;")
	markerAt := strings.Index(out, testMarker)
	if markerAt < nsAt || markerAt < useAt {
		t.Errorf("marker must come after namespace and use statements:\n%s", out)
	}
	echoAt := strings.Index(out, "echo time();")
	if markerAt > echoAt {
		t.Errorf("marker must precede the first statement:\n%s", out)
	}
}

func TestAnalyze_MissingNamespaceFailsWithoutPartialFix(t *testing.T) {
	stream, err := lexer.Lex([]byte("<?php\necho time();\n"))
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	result, err := Analyze(stream, Options{Fix: true})
	if err == nil {
		t.Fatal("expected namespace resolution failure")
	}
	if !cmerrors.IsNamespaceFailure(err) {
		t.Errorf("expected namespace failure, got %v", err)
	}
	if stream.InsertionCount() != 0 {
		t.Error("no partial fix may be recorded on a failed unit")
	}
	if result.Err == "" {
		t.Error("failed unit must carry its error")
	}
}

func TestAnalyze_IncompleteNamespaceFails(t *testing.T) {
	stream, err := lexer.Lex([]byte("<?php\nnamespace Vendor;\necho time();\n"))
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	_, err = Analyze(stream, Options{Fix: true})
	if cmerrors.TypeOf(err) != cmerrors.ErrorTypeIncompleteNamespace {
		t.Errorf("expected incomplete_namespace, got %v", err)
	}
}

func TestAnalyze_CheckModeNeverNeedsNamespace(t *testing.T) {
	result, _ := analyze(t, "<?php\necho time();\n", Options{})
	if len(result.Diagnostics) != 1 {
		t.Errorf("check mode works without a namespace, got %d diagnostics", len(result.Diagnostics))
	}
}

func TestResolveNamespace_FirstTwoSegments(t *testing.T) {
	stream, err := lexer.Lex([]byte("<?php\nnamespace Acme\\Blog\\Util;\n"))
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	ns, err := ResolveNamespace(stream, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != "Acme\\Blog" {
		t.Errorf("expected Acme\\Blog, got %s", ns)
	}
}

func TestWalker_NamespaceResolvedFromUnit(t *testing.T) {
	src := "<?php\nnamespace Acme\\Blog\\Util;\n\necho uniqid();\n"
	result, stream := analyze(t, src, Options{Fix: true})
	if result.Fixes != 1 {
		t.Fatalf("expected 1 fix, got %d", result.Fixes)
	}
	if !strings.Contains(string(stream.Render()), "Acme\\Blog\\framework\\Cache::noCache();") {
		t.Errorf("marker must use the unit's own namespace prefix:\n%s", stream.Render())
	}
}

func TestWalker_FrameworkPathOverride(t *testing.T) {
	src := "<?php\necho time();\n"
	stream, err := lexer.Lex([]byte(src))
	if err != nil {
		t.Fatalf("lex failed: %v", err)
	}
	_, err = Analyze(stream, Options{Fix: true, Namespace: `Vendor\Package`, FrameworkPath: "core"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(string(stream.Render()), `Vendor\Package\core\Cache::noCache();`) {
		t.Errorf("framework path override not applied:\n%s", stream.Render())
	}
}
