package analyzer

import (
	"strings"

	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// StripMarkers removes every `...\Cache::noCache();` marker statement from
// the stream and returns the stripped source plus the number of markers
// removed. Used before re-analysis when a unit's markers may be stale.
func StripMarkers(s *token.Stream) ([]byte, int) {
	skip := make(map[int]bool)
	removed := 0

	for i := 0; i < s.Len(); i++ {
		tok := s.At(i)
		if tok.Kind != types.TokenIdent || !strings.EqualFold(tok.Text, MarkerCall) {
			continue
		}
		first, last, ok := markerSpan(s, i)
		if !ok {
			continue
		}
		// swallow the preceding whitespace token so a marker inserted on its
		// own line disappears without leaving a blank one
		if first > 0 && s.At(first-1).Kind == types.TokenWhitespace {
			first--
		}
		for j := first; j <= last; j++ {
			skip[j] = true
		}
		removed++
		i = last
	}

	if removed == 0 {
		return s.Render(), 0
	}

	var sb strings.Builder
	for i := 0; i < s.Len(); i++ {
		if !skip[i] {
			sb.WriteString(s.At(i).Text)
		}
	}
	return []byte(sb.String()), removed
}

// markerSpan validates that the noCache identifier at index i sits inside a
// `Cache::noCache( ... ) ;` statement and returns the token range covering
// the whole statement, including any leading qualified-name prefix.
func markerSpan(s *token.Stream, i int) (first, last int, ok bool) {
	colon := s.PrevSignificant(i - 1)
	if colon == types.NoMatch || s.At(colon).Kind != types.TokenDoubleColon {
		return 0, 0, false
	}
	class := s.PrevSignificant(colon - 1)
	if class == types.NoMatch || s.At(class).Kind != types.TokenIdent ||
		!strings.EqualFold(s.At(class).Text, MarkerClass) {
		return 0, 0, false
	}

	open := s.NextSignificant(i + 1)
	if open == types.NoMatch || s.At(open).Kind != types.TokenOpenParen {
		return 0, 0, false
	}
	closer := s.At(open).Match
	if closer == types.NoMatch {
		return 0, 0, false
	}
	semi := s.NextSignificant(closer + 1)
	if semi == types.NoMatch || s.At(semi).Kind != types.TokenSemicolon {
		return 0, 0, false
	}

	// walk back over the `Vendor\Package\framework\` prefix
	first = class
	for {
		p := s.PrevSignificant(first - 1)
		if p == types.NoMatch || s.At(p).Kind != types.TokenBackslash {
			break
		}
		first = p
		q := s.PrevSignificant(first - 1)
		if q == types.NoMatch || s.At(q).Kind != types.TokenIdent {
			break
		}
		first = q
	}
	return first, semi, true
}
