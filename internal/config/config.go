// Package config loads .cachemark.toml and derives the effective catalogue
// from it. CLI flags override file values; the file is optional.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/cachemark/internal/catalogue"
	cmerrors "github.com/standardbeagle/cachemark/internal/errors"
)

// DefaultFileName is where Load looks when no --config flag is given.
const DefaultFileName = ".cachemark.toml"

type Config struct {
	// Include/Exclude are doublestar globs relative to the scanned root.
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`

	// Namespace, when set, overrides per-file namespace resolution for the
	// marker prefix. FrameworkPath overrides the marker's framework segment.
	Namespace     string `toml:"namespace"`
	FrameworkPath string `toml:"framework_path"`

	// Jobs caps parallel file analyses; 0 means one per CPU.
	Jobs int `toml:"jobs"`

	// WatchDebounceMs batches filesystem events in watch mode.
	WatchDebounceMs int `toml:"watch_debounce_ms"`

	// Rules adds or overrides catalogue entries: name -> threshold, with -1
	// meaning always non-deterministic. DisableRules drops built-ins.
	Rules        map[string]int `toml:"rules"`
	DisableRules []string       `toml:"disable_rules"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Include:         []string{"**/*.php", "**/*.phtml"},
		Exclude:         []string{"**/vendor/**", "**/node_modules/**"},
		WatchDebounceMs: 300,
	}
}

// Load reads path, falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrorTypeConfig, "read config", err).WithFile(path)
	}

	cfg := Default()
	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, cmerrors.New(cmerrors.ErrorTypeConfig, "parse config", err).WithFile(path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cmerrors.New(cmerrors.ErrorTypeConfig, "validate config", err).WithFile(path)
	}
	return cfg, nil
}

// Validate checks value ranges. Thresholds below -1 have no meaning and more
// often than not are typos.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must be >= 0, got %d", c.Jobs)
	}
	if c.WatchDebounceMs < 0 {
		return fmt.Errorf("watch_debounce_ms must be >= 0, got %d", c.WatchDebounceMs)
	}
	for name, threshold := range c.Rules {
		if name == "" {
			return fmt.Errorf("rule with empty name")
		}
		if threshold < catalogue.Always {
			return fmt.Errorf("rule %s: threshold must be -1 (always) or >= 0, got %d", name, threshold)
		}
	}
	return nil
}

// Catalogue builds the effective rule set: built-ins minus DisableRules plus
// Rules overrides.
func (c *Config) Catalogue() *catalogue.Catalogue {
	cat := catalogue.Default()
	if len(c.DisableRules) > 0 {
		cat = cat.Without(c.DisableRules...)
	}
	if len(c.Rules) > 0 {
		extra := make([]catalogue.Rule, 0, len(c.Rules))
		for name, threshold := range c.Rules {
			extra = append(extra, catalogue.Rule{Name: name, Threshold: threshold})
		}
		cat = cat.With(extra...)
	}
	return cat
}
