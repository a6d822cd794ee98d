package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/cachemark/internal/catalogue"
	"github.com/standardbeagle/cachemark/internal/config"
	"github.com/standardbeagle/cachemark/internal/runner"
	"github.com/standardbeagle/cachemark/internal/types"
)

var Version = "0.3.0"

func main() {
	app := &cli.App{
		Name:                   "cachemark",
		Usage:                  "Find non-deterministic PHP scopes and mark them uncacheable",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.DefaultFileName,
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Marker namespace prefix (Vendor\\Package); resolved per file when empty",
			},
			&cli.StringFlag{
				Name:  "framework-path",
				Usage: "Namespace segment between the prefix and the Cache class",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (e.g. --include 'src/**/*.php')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g. --exclude '**/tests/**')",
			},
			&cli.StringSliceFlag{
				Name:  "rule",
				Usage: "Add or override a catalogue rule: name=threshold, -1 or 'always' for unconditional",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Parallel file analyses (0 = one per CPU)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output results as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Aliases:   []string{"lint"},
				Usage:     "Report non-deterministic call sites without rewriting",
				ArgsUsage: "[root]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Keep running and re-check files as they change",
					},
				},
				Action: runCheck,
			},
			{
				Name:      "fix",
				Usage:     "Insert Cache::noCache() markers into non-deterministic scopes",
				ArgsUsage: "[root]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strip",
						Usage: "Remove existing markers before re-analyzing",
					},
					&cli.BoolFlag{
						Name:  "diff",
						Usage: "Print rewritten files instead of writing them",
					},
				},
				Action: runFix,
			},
			{
				Name:   "rules",
				Usage:  "Print the effective determinism catalogue",
				Action: runRules,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cachemark: %v\n", err)
		os.Exit(2)
	}
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	if ns := c.String("namespace"); ns != "" {
		cfg.Namespace = ns
	}
	if fw := c.String("framework-path"); fw != "" {
		cfg.FrameworkPath = fw
	}
	if jobs := c.Int("jobs"); jobs > 0 {
		cfg.Jobs = jobs
	}
	for _, spec := range c.StringSlice("rule") {
		name, threshold, err := parseRuleFlag(spec)
		if err != nil {
			return nil, err
		}
		if cfg.Rules == nil {
			cfg.Rules = make(map[string]int)
		}
		cfg.Rules[name] = threshold
	}
	return cfg, cfg.Validate()
}

// parseRuleFlag parses "name=threshold". "always" and "-1" both mean
// unconditionally non-deterministic.
func parseRuleFlag(spec string) (string, int, error) {
	name, value, found := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", 0, fmt.Errorf("invalid --rule %q, want name=threshold", spec)
	}
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "always") {
		return name, catalogue.Always, nil
	}
	threshold, err := strconv.Atoi(value)
	if err != nil || threshold < catalogue.Always {
		return "", 0, fmt.Errorf("invalid --rule threshold %q, want -1 (always) or >= 0", value)
	}
	return name, threshold, nil
}

func rootArg(c *cli.Context) (string, error) {
	root := c.Args().First()
	if root == "" {
		root = "."
	}
	return filepath.Abs(root)
}

func runCheck(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	root, err := rootArg(c)
	if err != nil {
		return err
	}

	r := runner.New(cfg, root, false, false)
	results, err := runBatch(c, r)
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		return watchLoop(c, r)
	}
	return exitStatus(results)
}

func runFix(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	root, err := rootArg(c)
	if err != nil {
		return err
	}

	r := runner.New(cfg, root, true, c.Bool("strip"))
	r.SetDiff(c.Bool("diff"))
	results, err := runBatch(c, r)
	if err != nil {
		return err
	}
	return exitStatus(results)
}

func runBatch(c *cli.Context, r *runner.Runner) ([]*types.FileResult, error) {
	paths, err := r.Discover()
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := r.Run(ctx, paths)
	if err != nil {
		return nil, err
	}
	printResults(c, results)
	return results, nil
}

func watchLoop(c *cli.Context, r *runner.Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "watching for changes, ^C to stop")
	err := r.Watch(ctx, func(result *types.FileResult) {
		printResults(c, []*types.FileResult{result})
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

func runRules(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	rules := cfg.Catalogue().Rules()

	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(rules)
	}
	for _, rule := range rules {
		if rule.Dynamic() {
			fmt.Printf("%-24s always\n", rule.Name)
		} else {
			fmt.Printf("%-24s deterministic with >= %d args\n", rule.Name, rule.Threshold)
		}
	}
	return nil
}

func printResults(c *cli.Context, results []*types.FileResult) {
	if c.Bool("json") {
		reported := make([]*types.FileResult, 0, len(results))
		for _, result := range results {
			if !result.Skipped {
				reported = append(reported, result)
			}
		}
		_ = json.NewEncoder(os.Stdout).Encode(reported)
		return
	}

	files, findings, fixes := 0, 0, 0
	for _, result := range results {
		if result.Skipped {
			continue
		}
		files++
		for _, d := range result.Diagnostics {
			findings++
			fmt.Printf("%s:%d:%d: [%s] %s\n", result.Path, d.Line, d.Column, d.Code, d.Message)
		}
		if result.Err != "" {
			fmt.Printf("%s: error: %s\n", result.Path, result.Err)
		}
		if result.Unscannable {
			fmt.Printf("%s: warning: malformed token boundaries, scan incomplete\n", result.Path)
		}
		if len(result.Output) > 0 {
			fmt.Printf("--- %s\n%s", result.Path, result.Output)
		}
		fixes += result.Fixes
	}
	if fixes > 0 {
		fmt.Printf("%d file(s) scanned, %d finding(s), %d marker(s) inserted\n", files, findings, fixes)
	} else {
		fmt.Printf("%d file(s) scanned, %d finding(s)\n", files, findings)
	}
}

// exitStatus maps results to exit codes: 1 for findings, 2 for unit errors.
func exitStatus(results []*types.FileResult) error {
	hasFindings, hasErrors := false, false
	for _, result := range results {
		if result.Err != "" {
			hasErrors = true
		}
		if len(result.Diagnostics) > 0 {
			hasFindings = true
		}
	}
	if hasErrors {
		return cli.Exit("", 2)
	}
	if hasFindings {
		return cli.Exit("", 1)
	}
	return nil
}
