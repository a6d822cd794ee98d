// Package lexer turns PHP source into the flat token stream the analyzer
// walks. It flattens the tree-sitter concrete syntax tree into leaf tokens,
// reconstructs the whitespace between them, pairs delimiters, and attaches
// body-brace boundaries to routine and closure keywords.
package lexer

import (
	"errors"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	cmerrors "github.com/standardbeagle/cachemark/internal/errors"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// scopeSpan links a routine/closure keyword token to its body braces, in byte
// offsets until the post-pass maps them to token indexes.
type scopeSpan struct {
	keywordToken int
	bodyStart    uint
	bodyEnd      uint
}

type lexer struct {
	src    []byte
	tokens []types.Token
	spans  []scopeSpan

	// running position, advanced token by token
	offset uint
	line   int
	column int
}

// Lex tokenizes PHP source. The returned stream carries paired-delimiter
// metadata on every paren/brace/bracket token and scope boundaries on every
// "function" keyword that has a brace-delimited body.
func Lex(src []byte) (*token.Stream, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	language := tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	if err := parser.SetLanguage(language); err != nil {
		return nil, cmerrors.New(cmerrors.ErrorTypeParse, "lexer setup", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, cmerrors.New(cmerrors.ErrorTypeParse, "parse", errors.New("parser returned no tree"))
	}
	defer tree.Close()

	lx := &lexer{src: src, line: 1, column: 1}
	lx.visit(tree.RootNode(), nil)
	lx.emitGap(uint(len(src))) // trailing text after the last leaf

	pairDelimiters(lx.tokens)
	attachScopes(lx.tokens, lx.spans)

	return token.New(lx.tokens), nil
}

// atomicKinds are named nodes emitted as a single token without descending.
// Interpolated strings stay atomic on purpose: an argument list never counts
// commas inside a string literal.
var atomicKinds = map[string]bool{
	"variable_name":   true,
	"string":          true,
	"encapsed_string": true,
	"heredoc":         true,
	"nowdoc":          true,
	"comment":         true,
}

func (lx *lexer) visit(node *tree_sitter.Node, parent *tree_sitter.Node) {
	if node == nil {
		return
	}
	kind := node.Kind()

	if atomicKinds[kind] || node.ChildCount() == 0 {
		lx.emitLeaf(node, parent, kind)
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		lx.visit(node.Child(i), node)
	}
}

func (lx *lexer) emitLeaf(node *tree_sitter.Node, parent *tree_sitter.Node, kind string) {
	start, end := node.StartByte(), node.EndByte()
	if end <= start || end > uint(len(lx.src)) {
		return
	}
	lx.emitGap(start)

	text := string(lx.src[start:end])
	tok := types.Token{
		Kind:       classify(kind, text, node, parent),
		Text:       text,
		Line:       lx.line,
		Column:     lx.column,
		Match:      types.NoMatch,
		ScopeOpen:  types.NoMatch,
		ScopeClose: types.NoMatch,
	}
	lx.tokens = append(lx.tokens, tok)
	lx.advance(text)
	lx.offset = end

	if tok.Kind == types.TokenFunction || tok.Kind == types.TokenClosure {
		lx.recordScope(parent, len(lx.tokens)-1)
	}
}

// emitGap materializes the source text between the previous leaf and offset
// `to` as a whitespace token, so rendering reproduces the input byte for byte.
func (lx *lexer) emitGap(to uint) {
	if to <= lx.offset {
		return
	}
	text := string(lx.src[lx.offset:to])
	lx.tokens = append(lx.tokens, types.Token{
		Kind:       types.TokenWhitespace,
		Text:       text,
		Line:       lx.line,
		Column:     lx.column,
		Match:      types.NoMatch,
		ScopeOpen:  types.NoMatch,
		ScopeClose: types.NoMatch,
	})
	lx.advance(text)
	lx.offset = to
}

func (lx *lexer) advance(text string) {
	if n := strings.Count(text, "\n"); n > 0 {
		lx.line += n
		lx.column = len(text) - strings.LastIndexByte(text, '\n')
	} else {
		lx.column += len(text)
	}
}

// recordScope notes the body braces of the routine/closure node owning the
// just-emitted "function" keyword. Bodyless declarations (abstract methods,
// interface members) get no span and are skipped by the walker.
func (lx *lexer) recordScope(owner *tree_sitter.Node, keywordToken int) {
	if owner == nil {
		return
	}
	body := owner.ChildByFieldName("body")
	if body == nil || body.Kind() != "compound_statement" {
		return
	}
	lx.spans = append(lx.spans, scopeSpan{
		keywordToken: keywordToken,
		bodyStart:    body.StartByte(),
		bodyEnd:      body.EndByte(),
	})
}

func classify(kind, text string, node *tree_sitter.Node, parent *tree_sitter.Node) types.TokenKind {
	switch kind {
	case "name":
		return types.TokenIdent
	case "variable_name":
		return types.TokenVariable
	case "string", "encapsed_string", "heredoc", "nowdoc", "string_content", "escape_sequence":
		return types.TokenString
	case "comment":
		return types.TokenComment
	case "integer", "float":
		return types.TokenNumber
	case "php_tag":
		return types.TokenOpenTag
	}

	switch text {
	case "(":
		return types.TokenOpenParen
	case ")":
		return types.TokenCloseParen
	case "{":
		return types.TokenOpenBrace
	case "}":
		return types.TokenCloseBrace
	case "[":
		return types.TokenOpenBracket
	case "]":
		return types.TokenCloseBracket
	case ",":
		return types.TokenComma
	case ";":
		return types.TokenSemicolon
	case "...":
		return types.TokenEllipsis
	case "->", "?->":
		return types.TokenArrow
	case "::":
		return types.TokenDoubleColon
	case "\\":
		return types.TokenBackslash
	case "?>":
		return types.TokenCloseTag
	case "function":
		if parent != nil {
			switch parent.Kind() {
			case "function_definition", "method_declaration":
				return types.TokenFunction
			case "anonymous_function", "anonymous_function_creation_expression":
				return types.TokenClosure
			}
		}
		return types.TokenKeyword
	case "fn":
		return types.TokenFn
	case "namespace":
		return types.TokenNamespace
	}

	if !node.IsNamed() && isWord(text) {
		return types.TokenKeyword
	}
	if node.IsNamed() {
		return types.TokenOther
	}
	return types.TokenOperator
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
			return false
		}
	}
	return true
}

// pairDelimiters links every paren/bracket/brace token to its partner.
// Unbalanced delimiters keep Match == NoMatch; the walker treats those as
// malformed boundaries rather than guessing.
func pairDelimiters(tokens []types.Token) {
	var parens, braces, brackets []int
	for i := range tokens {
		switch tokens[i].Kind {
		case types.TokenOpenParen:
			parens = append(parens, i)
		case types.TokenOpenBrace:
			braces = append(braces, i)
		case types.TokenOpenBracket:
			brackets = append(brackets, i)
		case types.TokenCloseParen:
			parens = pop(tokens, parens, i)
		case types.TokenCloseBrace:
			braces = pop(tokens, braces, i)
		case types.TokenCloseBracket:
			brackets = pop(tokens, brackets, i)
		}
	}
}

func pop(tokens []types.Token, stack []int, closer int) []int {
	if len(stack) == 0 {
		return stack
	}
	opener := stack[len(stack)-1]
	tokens[opener].Match = closer
	tokens[closer].Match = opener
	return stack[:len(stack)-1]
}

// attachScopes resolves each recorded body span from byte offsets to the
// token indexes of its braces.
func attachScopes(tokens []types.Token, spans []scopeSpan) {
	if len(spans) == 0 {
		return
	}
	// Token start offsets, reconstructed by summing text lengths.
	offsets := make([]uint, len(tokens))
	var off uint
	for i := range tokens {
		offsets[i] = off
		off += uint(len(tokens[i].Text))
	}
	byOffset := make(map[uint]int, len(tokens))
	for i := range tokens {
		byOffset[offsets[i]] = i
	}
	for _, sp := range spans {
		open, okOpen := byOffset[sp.bodyStart]
		closeTok, okClose := byOffset[sp.bodyEnd-1]
		if !okOpen || !okClose {
			continue
		}
		if tokens[open].Kind != types.TokenOpenBrace || tokens[closeTok].Kind != types.TokenCloseBrace {
			continue
		}
		tokens[sp.keywordToken].ScopeOpen = open
		tokens[sp.keywordToken].ScopeClose = closeTok
	}
}
