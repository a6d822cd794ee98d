// Package token holds the token storage for one source unit: an ordered token
// slice with a paired-delimiter index, plus the pending-insertion ledger the
// fixer writes through. All positions are computed against the pre-fix layout;
// insertions only become visible when the stream is rendered back to text.
package token

import (
	"sort"
	"strings"

	"github.com/standardbeagle/cachemark/internal/types"
)

// Stream owns the tokens of one source unit. It is mutated only through
// InsertAfter and never read concurrently with mutation; one analysis owns
// one stream.
type Stream struct {
	tokens  []types.Token
	inserts map[int][]string // token index -> texts emitted after that token
}

// New wraps a token slice produced by the lexer. The slice is taken over by
// the stream.
func New(tokens []types.Token) *Stream {
	return &Stream{tokens: tokens}
}

// Len returns the number of tokens.
func (s *Stream) Len() int {
	return len(s.tokens)
}

// At returns the token at index i. The index must be in range.
func (s *Stream) At(i int) types.Token {
	return s.tokens[i]
}

// NextSignificant returns the index of the first token at or after i that is
// neither whitespace nor a comment, or types.NoMatch if none remains.
func (s *Stream) NextSignificant(i int) int {
	for ; i < len(s.tokens); i++ {
		if s.tokens[i].IsSignificant() {
			return i
		}
	}
	return types.NoMatch
}

// PrevSignificant returns the index of the last token at or before i that is
// neither whitespace nor a comment, or types.NoMatch if none precedes.
func (s *Stream) PrevSignificant(i int) int {
	for ; i >= 0; i-- {
		if s.tokens[i].IsSignificant() {
			return i
		}
	}
	return types.NoMatch
}

// InsertAfter records text to be emitted immediately after token i when the
// stream is rendered. Multiple insertions at one index render in call order.
// Indices of existing tokens are unaffected.
func (s *Stream) InsertAfter(i int, text string) {
	if s.inserts == nil {
		s.inserts = make(map[int][]string)
	}
	s.inserts[i] = append(s.inserts[i], text)
}

// InsertionCount returns how many pending insertions the stream carries.
func (s *Stream) InsertionCount() int {
	n := 0
	for _, texts := range s.inserts {
		n += len(texts)
	}
	return n
}

// Render emits the source text with all pending insertions applied.
// Insertions recorded at index -1 are emitted before the first token.
func (s *Stream) Render() []byte {
	var sb strings.Builder
	for _, text := range s.inserts[-1] {
		sb.WriteString(text)
	}
	for i, tok := range s.tokens {
		sb.WriteString(tok.Text)
		for _, text := range s.inserts[i] {
			sb.WriteString(text)
		}
	}
	return []byte(sb.String())
}

// InsertionIndexes returns the token indexes carrying pending insertions, in
// ascending order. Used by reporting, not by the walker.
func (s *Stream) InsertionIndexes() []int {
	idxs := make([]int, 0, len(s.inserts))
	for i := range s.inserts {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs
}
