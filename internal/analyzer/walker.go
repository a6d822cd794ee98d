package analyzer

import (
	"strings"

	"github.com/standardbeagle/cachemark/internal/catalogue"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// ScopeWalker drives the depth-first scan over one unit's scope tree. It
// exclusively owns the traversal position; the stream is only written through
// the emitter's insertion ledger.
type ScopeWalker struct {
	stream  *token.Stream
	cat     *catalogue.Catalogue
	emitter *FixEmitter
	result  *types.FileResult

	fileInsert    int
	fileInsertSet bool
}

// NewScopeWalker builds a walker over one unit.
func NewScopeWalker(stream *token.Stream, cat *catalogue.Catalogue, emitter *FixEmitter, result *types.FileResult) *ScopeWalker {
	return &ScopeWalker{stream: stream, cat: cat, emitter: emitter, result: result}
}

// WalkFile scans the whole unit as the root File scope.
func (w *ScopeWalker) WalkFile() error {
	_, err := w.Walk(types.ScopeFile, -1, w.stream.Len()-1)
	return err
}

// Walk scans one scope's direct statements, from start+1 through end
// inclusive, and returns the scope's end index so the caller can resume
// right after the nested region. Nested routine and closure bodies recurse;
// their internal dynamism never leaks into the enclosing scope, because each
// scope executes (and is cached) at its own call time.
func (w *ScopeWalker) Walk(kind types.ScopeKind, start, end int) (int, error) {
	insertAfter := start
	if kind == types.ScopeFile {
		insertAfter = w.fileInsertionPoint()
	}

	for i := start + 1; i <= end && i < w.stream.Len(); i++ {
		tok := w.stream.At(i)
		switch tok.Kind {
		case types.TokenFunction, types.TokenClosure:
			if tok.ScopeOpen == types.NoMatch || tok.ScopeClose == types.NoMatch {
				// no recorded body: abstract/interface declarations have no
				// scope to scan, skip the keyword itself
				continue
			}
			nested := types.ScopeRoutine
			if tok.Kind == types.TokenClosure {
				nested = types.ScopeClosure
			}
			resume, err := w.Walk(nested, tok.ScopeOpen, tok.ScopeClose)
			if err != nil {
				return end, err
			}
			i = resume

		case types.TokenIdent:
			stop, err := w.classifyCall(kind, i, insertAfter)
			if err != nil {
				return end, err
			}
			if stop {
				return end, nil
			}
		}
	}
	return end, nil
}

// classifyCall inspects the identifier at index i. stop=true means the scope's
// fate is decided (explicit marker found, fix applied, or the rest of the
// scope is unscannable) and the walker must leave the scope immediately.
func (w *ScopeWalker) classifyCall(scope types.ScopeKind, i, insertAfter int) (stop bool, err error) {
	tok := w.stream.At(i)

	next := w.stream.NextSignificant(i + 1)
	if next == types.NoMatch || w.stream.At(next).Kind != types.TokenOpenParen {
		return false, nil
	}
	open := next

	prevIdx := w.stream.PrevSignificant(i - 1)
	var prev types.Token
	if prevIdx != types.NoMatch {
		prev = w.stream.At(prevIdx)
	}

	// The scope already opts out explicitly; its fate is decided, so leave
	// without a diagnostic. Only the Cache::noCache() form counts: an
	// unrelated class's noCache method is an ordinary static call and falls
	// through to the receiver filter below.
	if prev.Kind == types.TokenDoubleColon && strings.EqualFold(tok.Text, MarkerCall) &&
		w.markerReceiver(prevIdx) {
		_, _ = w.emitter.Emit(types.Verdict{Kind: types.VerdictAlreadyMarked},
			tok.Text, scope, tok.Line, tok.Column, insertAfter)
		return true, nil
	}

	// Method calls, static calls, declaration names and constructors are not
	// catalogue call sites; determinism is judged from plain function names
	// only.
	switch prev.Kind {
	case types.TokenArrow, types.TokenDoubleColon, types.TokenFunction, types.TokenFn:
		return false, nil
	case types.TokenKeyword:
		if strings.EqualFold(prev.Text, "new") {
			return false, nil
		}
	}

	closer := w.stream.At(open).Match
	if closer == types.NoMatch {
		// missing closer: do not guess a boundary, give up on this scope
		w.result.Unscannable = true
		return true, nil
	}

	count, hasUnpack, err := CountArguments(w.stream, open, closer)
	if err != nil {
		w.result.Unscannable = true
		return true, nil
	}

	verdict := Classify(tok.Text, count, hasUnpack, w.cat)
	if verdict.Kind == types.VerdictClear {
		return false, nil
	}
	return w.emitter.Emit(verdict, tok.Text, scope, tok.Line, tok.Column, insertAfter)
}

// markerReceiver reports whether the token before the :: at colonIdx is the
// marker's Cache class.
func (w *ScopeWalker) markerReceiver(colonIdx int) bool {
	cls := w.stream.PrevSignificant(colonIdx - 1)
	if cls == types.NoMatch {
		return false
	}
	receiver := w.stream.At(cls)
	return receiver.Kind == types.TokenIdent && strings.EqualFold(receiver.Text, MarkerClass)
}

// fileInsertionPoint finds where a file-scope marker belongs: after the open
// tag, and past the declare/namespace/use statements PHP requires to come
// first. Computed once per unit.
func (w *ScopeWalker) fileInsertionPoint() int {
	if w.fileInsertSet {
		return w.fileInsert
	}
	w.fileInsertSet = true
	w.fileInsert = -1 // prepend when there is no open tag at all

	for i := 0; i < w.stream.Len(); i++ {
		if w.stream.At(i).Kind == types.TokenOpenTag {
			w.fileInsert = i
			break
		}
	}
	if w.fileInsert == -1 {
		return w.fileInsert
	}

	for {
		next := w.stream.NextSignificant(w.fileInsert + 1)
		if next == types.NoMatch {
			break
		}
		tok := w.stream.At(next)
		leading := tok.Kind == types.TokenNamespace ||
			(tok.Kind == types.TokenKeyword && (tok.Text == "declare" || tok.Text == "use"))
		if !leading {
			break
		}
		term := w.statementTerminator(next)
		if term == types.NoMatch {
			break
		}
		w.fileInsert = term
	}
	return w.fileInsert
}

// statementTerminator returns the semicolon ending the statement that starts
// at index i, or the opening brace of a braced namespace body.
func (w *ScopeWalker) statementTerminator(i int) int {
	for j := i + 1; j < w.stream.Len(); j++ {
		switch w.stream.At(j).Kind {
		case types.TokenSemicolon, types.TokenOpenBrace:
			return j
		}
	}
	return types.NoMatch
}
