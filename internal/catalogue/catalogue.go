// Package catalogue holds the table of call names known to depend on the
// clock, a random source, or other mutable process state. The catalogue is
// the versioned configuration surface of the analyzer: callers extend or
// substitute it without touching the walker or classifier.
package catalogue

import (
	"sort"
	"strings"
)

// Always marks a rule whose calls are non-deterministic no matter how many
// arguments are supplied.
const Always = -1

// Rule is one catalogue entry. Threshold < 0 means any call to Name is
// non-deterministic; Threshold = N means a call is non-deterministic only
// when it supplies fewer than N arguments (supplying all of them, e.g. an
// explicit timestamp, pins the result).
type Rule struct {
	Name      string
	Threshold int
}

// Dynamic reports whether the rule flags every call regardless of arguments.
func (r Rule) Dynamic() bool {
	return r.Threshold < 0
}

// Catalogue is an immutable name->Rule mapping with case-insensitive lookup,
// built once and shared read-only across concurrent analyses.
type Catalogue struct {
	rules map[string]Rule
}

// New builds a catalogue from the given rules. Later duplicates win.
func New(rules ...Rule) *Catalogue {
	c := &Catalogue{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		c.rules[strings.ToLower(r.Name)] = r
	}
	return c
}

// Lookup finds the rule for a call name. PHP function names are
// case-insensitive, so the lookup is too.
func (c *Catalogue) Lookup(name string) (Rule, bool) {
	r, ok := c.rules[strings.ToLower(name)]
	return r, ok
}

// Len returns the number of rules.
func (c *Catalogue) Len() int {
	return len(c.rules)
}

// With returns a copy of the catalogue extended (or overridden) by the given
// rules. The receiver is not modified.
func (c *Catalogue) With(rules ...Rule) *Catalogue {
	next := &Catalogue{rules: make(map[string]Rule, len(c.rules)+len(rules))}
	for k, v := range c.rules {
		next.rules[k] = v
	}
	for _, r := range rules {
		next.rules[strings.ToLower(r.Name)] = r
	}
	return next
}

// Without returns a copy of the catalogue with the named rules removed.
func (c *Catalogue) Without(names ...string) *Catalogue {
	next := &Catalogue{rules: make(map[string]Rule, len(c.rules))}
	for k, v := range c.rules {
		next.rules[k] = v
	}
	for _, n := range names {
		delete(next.rules, strings.ToLower(n))
	}
	return next
}

// Rules returns all rules sorted by name, for reporting.
func (c *Catalogue) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Default returns the built-in PHP rule set.
//
// Thresholds follow the signature position of the optional timestamp (or, for
// mktime/gmmktime, the full date component list): once every component is
// written out literally the call is reproducible. Random sources and process
// state readers have no such argument and are always dynamic.
func Default() *Catalogue {
	return New(
		// clock
		Rule{Name: "time", Threshold: Always},
		Rule{Name: "microtime", Threshold: Always},
		Rule{Name: "hrtime", Threshold: Always},
		Rule{Name: "date", Threshold: 2},
		Rule{Name: "gmdate", Threshold: 2},
		Rule{Name: "idate", Threshold: 2},
		Rule{Name: "strtotime", Threshold: 2},
		Rule{Name: "mktime", Threshold: 6},
		Rule{Name: "gmmktime", Threshold: 6},
		Rule{Name: "getdate", Threshold: 1},
		Rule{Name: "localtime", Threshold: 1},
		Rule{Name: "date_create", Threshold: 1},
		Rule{Name: "date_create_immutable", Threshold: 1},

		// random sources
		Rule{Name: "rand", Threshold: Always},
		Rule{Name: "mt_rand", Threshold: Always},
		Rule{Name: "random_int", Threshold: Always},
		Rule{Name: "random_bytes", Threshold: Always},
		Rule{Name: "lcg_value", Threshold: Always},
		Rule{Name: "uniqid", Threshold: Always},
		Rule{Name: "array_rand", Threshold: Always},
		Rule{Name: "shuffle", Threshold: Always},
		Rule{Name: "str_shuffle", Threshold: Always},

		// process / host state
		Rule{Name: "getenv", Threshold: Always},
		Rule{Name: "getmypid", Threshold: Always},
		Rule{Name: "posix_getpid", Threshold: Always},
		Rule{Name: "gethostname", Threshold: Always},
		Rule{Name: "memory_get_usage", Threshold: Always},
		Rule{Name: "memory_get_peak_usage", Threshold: Always},
		Rule{Name: "sys_getloadavg", Threshold: Always},
		Rule{Name: "session_id", Threshold: Always},
	)
}
