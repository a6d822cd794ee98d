package types

// Shared value types for the cachemark analyzer. Kept in one package so the
// lexer, token stream, analyzer and runner agree on token and verdict shapes
// without import cycles.

// TokenKind classifies a lexical token. The walker matches on kinds, never on
// raw text, except where PHP reuses one keyword for several constructs.
type TokenKind uint8

const (
	TokenOther TokenKind = iota
	TokenIdent    // bare name: function calls, class names, namespace segments
	TokenVariable // $foo, kept as a single token
	TokenOpenParen
	TokenCloseParen
	TokenOpenBrace
	TokenCloseBrace
	TokenOpenBracket
	TokenCloseBracket
	TokenComma
	TokenEllipsis // ... argument unpacking
	TokenSemicolon
	TokenWhitespace
	TokenComment
	TokenString // string literals are atomic, interpolation is not descended into
	TokenNumber
	TokenOperator
	TokenArrow       // -> and ?->
	TokenDoubleColon // ::
	TokenBackslash   // namespace separator
	TokenFunction    // "function" opening a named routine or method
	TokenClosure     // "function" opening an anonymous closure
	TokenFn          // "fn" opening an arrow function
	TokenNamespace   // "namespace" keyword
	TokenOpenTag     // <?php or <?=
	TokenCloseTag    // ?>
	TokenKeyword     // any other reserved word (new, use, declare, return, ...)
)

// NoMatch marks a delimiter token with no recorded pair, or a keyword token
// with no recorded scope boundary.
const NoMatch = -1

// Token is one lexical token with paired-delimiter and scope metadata.
//
// Match holds the index of the matching delimiter for paren/brace/bracket
// tokens. ScopeOpen/ScopeClose hold the body brace indices for TokenFunction,
// TokenClosure and TokenFn tokens. All three are NoMatch when absent.
type Token struct {
	Kind       TokenKind
	Text       string
	Line       int // 1-based
	Column     int // 1-based
	Match      int
	ScopeOpen  int
	ScopeClose int
}

// IsSignificant reports whether the token participates in syntax, i.e. is
// neither whitespace nor a comment.
func (t Token) IsSignificant() bool {
	return t.Kind != TokenWhitespace && t.Kind != TokenComment
}

// ScopeKind identifies which flavor of lexical scope is being scanned.
type ScopeKind uint8

const (
	ScopeFile ScopeKind = iota
	ScopeRoutine
	ScopeClosure
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeFile:
		return "file"
	case ScopeRoutine:
		return "routine"
	case ScopeClosure:
		return "closure"
	}
	return "unknown"
}

// VerdictKind is the outcome of classifying one call site.
type VerdictKind uint8

const (
	VerdictClear VerdictKind = iota
	VerdictAlwaysDynamic
	VerdictInsufficientArguments
	VerdictUnknownArgumentCount
	VerdictAlreadyMarked
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictClear:
		return "clear"
	case VerdictAlwaysDynamic:
		return "always-dynamic"
	case VerdictInsufficientArguments:
		return "insufficient-args"
	case VerdictUnknownArgumentCount:
		return "unknown-arg-count"
	case VerdictAlreadyMarked:
		return "already-marked"
	}
	return "unknown"
}

// Verdict is the classification of a single call site. Actual and Required
// are only meaningful for the argument-count kinds.
type Verdict struct {
	Kind     VerdictKind
	Actual   int
	Required int
}

// Stable diagnostic codes, part of the reporting contract with callers.
const (
	CodeAlwaysDynamic    = "always-dynamic"
	CodeInsufficientArgs = "insufficient-args"
	CodeUnknownArgCount  = "unknown-arg-count"
)

// Diagnostic is one reported determinism finding.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Call    string    `json:"call"`
	Line    int       `json:"line"`
	Column  int       `json:"column"`
	Scope   ScopeKind `json:"-"`
}

// FileResult is the outcome of analyzing one source unit.
type FileResult struct {
	Path        string       `json:"path"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Fixes       int          `json:"fixes,omitempty"`       // markers inserted (fix mode)
	Stripped    int          `json:"stripped,omitempty"`    // markers removed (--strip)
	Unscannable bool         `json:"unscannable,omitempty"` // malformed pairing cut the scan short
	Skipped     bool         `json:"skipped,omitempty"`     // content unchanged since last run
	Err         string       `json:"error,omitempty"`

	// Output holds the rewritten unit when fix runs with --diff; the file
	// on disk is left alone.
	Output []byte `json:"-"`
}

// Clean reports whether the unit was fully scanned and found deterministic.
func (r *FileResult) Clean() bool {
	return len(r.Diagnostics) == 0 && !r.Unscannable && r.Err == ""
}
