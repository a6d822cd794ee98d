package analyzer

import (
	"github.com/standardbeagle/cachemark/internal/catalogue"
	"github.com/standardbeagle/cachemark/internal/types"
)

// Classify judges one call site against the catalogue. The judgement is
// purely syntactic: the name, the counted arguments, and whether the count
// is even knowable.
//
// Unpacking beats the literal count on purpose. `gmmktime(...$args)` writes
// one syntactic argument but may supply six at runtime or none; since the
// count cannot be verified, any threshold-bound entry is flagged.
func Classify(name string, argCount int, hasUnpack bool, cat *catalogue.Catalogue) types.Verdict {
	rule, ok := cat.Lookup(name)
	if !ok {
		return types.Verdict{Kind: types.VerdictClear}
	}
	if rule.Dynamic() {
		return types.Verdict{Kind: types.VerdictAlwaysDynamic}
	}
	if hasUnpack {
		return types.Verdict{Kind: types.VerdictUnknownArgumentCount, Required: rule.Threshold}
	}
	if argCount >= rule.Threshold {
		return types.Verdict{Kind: types.VerdictClear}
	}
	return types.Verdict{
		Kind:     types.VerdictInsufficientArguments,
		Actual:   argCount,
		Required: rule.Threshold,
	}
}
