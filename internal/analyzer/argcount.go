package analyzer

import (
	"errors"

	cmerrors "github.com/standardbeagle/cachemark/internal/errors"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// CountArguments counts the top-level arguments of the call whose argument
// list sits between the paren pair (open, close). Nested groups are jumped
// over via the paired-delimiter index, so their commas never count. A `...`
// unpack seen at the top level makes the true count unknowable and is
// reported separately rather than folded into the count.
func CountArguments(s *token.Stream, open, close int) (count int, hasUnpack bool, err error) {
	first := s.NextSignificant(open + 1)
	if first == types.NoMatch || first >= close {
		return 0, false, nil
	}

	count = 1
	for i := open + 1; i < close; i++ {
		tok := s.At(i)
		switch tok.Kind {
		case types.TokenOpenParen, types.TokenOpenBrace, types.TokenOpenBracket:
			if tok.Match <= i || tok.Match > close {
				return 0, false, cmerrors.New(cmerrors.ErrorTypeMalformedScope,
					"argument counting", errors.New("unbalanced group inside argument list"))
			}
			i = tok.Match
		case types.TokenComma:
			count++
		case types.TokenEllipsis:
			hasUnpack = true
		}
	}
	return count, hasUnpack, nil
}
