package analyzer

import (
	"strings"

	cmerrors "github.com/standardbeagle/cachemark/internal/errors"
	"github.com/standardbeagle/cachemark/internal/token"
	"github.com/standardbeagle/cachemark/internal/types"
)

// ResolveNamespace scans forward from fromIndex for the unit's namespace
// declaration and returns its first two backslash-separated segments, the
// prefix a synthesized marker call needs. Only fix mode calls this, and at
// most once per source unit.
func ResolveNamespace(s *token.Stream, fromIndex int) (string, error) {
	decl := types.NoMatch
	for i := fromIndex; i < s.Len(); i++ {
		if s.At(i).Kind == types.TokenNamespace {
			decl = i
			break
		}
	}
	if decl == types.NoMatch {
		return "", cmerrors.MissingNamespace()
	}

	var segments []string
	j := decl
	for {
		j = s.NextSignificant(j + 1)
		if j == types.NoMatch {
			break
		}
		switch tok := s.At(j); tok.Kind {
		case types.TokenIdent:
			segments = append(segments, tok.Text)
		case types.TokenBackslash:
			// separator, keep going
		default:
			// semicolon or brace ends the declaration
			j = types.NoMatch
		}
		if j == types.NoMatch {
			break
		}
	}

	if len(segments) < 2 {
		return "", cmerrors.IncompleteNamespace(strings.Join(segments, "\\"))
	}
	return segments[0] + "\\" + segments[1], nil
}
