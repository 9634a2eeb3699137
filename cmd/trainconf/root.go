package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/trainconf/internal/config/loader"
	"github.com/dshills/trainconf/internal/config/reroute"
	"github.com/dshills/trainconf/internal/config/tree"
)

// app holds the persistent flags and what PersistentPreRunE builds from
// them.
type app struct {
	logLevel  string
	reroutes  []string
	envPrefix string
	noEnv     bool
	overrides []string

	logger  *slog.Logger
	reroute reroute.Func
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "trainconf",
		Short:         "Inspect, compare and rescale hierarchical training configs",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringArrayVar(&a.reroutes, "reroute", nil, "rewrite path prefix PREFIX=TARGET while loading (repeatable)")
	flags.StringVar(&a.envPrefix, "env-prefix", loader.DefaultEnvPrefix, "prefix of environment variables merged into configs")
	flags.BoolVar(&a.noEnv, "no-env", false, "ignore environment variable overrides")
	flags.StringArrayVar(&a.overrides, "set", nil, "override an existing key KEY=VALUE (repeatable)")

	root.AddCommand(
		newShowCmd(a),
		newGetCmd(a),
		newFlattenCmd(a),
		newHashCmd(a),
		newDiffCmd(a),
		newScaleCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	table := make(map[string]string, len(a.reroutes))
	for _, r := range a.reroutes {
		prefix, target, ok := strings.Cut(r, "=")
		if !ok || prefix == "" {
			return fmt.Errorf("invalid --reroute %q: want PREFIX=TARGET", r)
		}
		table[prefix] = target
	}
	if len(table) > 0 {
		a.reroute = reroute.Prefixes(table)
	}
	return nil
}

func (a *app) loaderOptions() []loader.Option {
	if a.reroute == nil {
		return nil
	}
	return []loader.Option{loader.WithReroute(a.reroute)}
}

// load resolves path and applies environment and --set overrides.
func (a *app) load(path string) (*tree.Tree, error) {
	cfg, err := tree.Load(path, a.loaderOptions(), tree.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	if !a.noEnv {
		env, err := loader.NewEnvLoader(a.envPrefix).Load()
		if err != nil {
			return nil, err
		}
		if len(env) > 0 {
			a.logger.Debug("Merging environment overrides",
				slog.String("prefix", a.envPrefix),
				slog.Int("keys", len(env)))
			if err := cfg.MergeFromMap(env); err != nil {
				return nil, fmt.Errorf("environment overrides: %w", err)
			}
		}
	}

	if len(a.overrides) > 0 {
		list := make([]string, 0, 2*len(a.overrides))
		for _, o := range a.overrides {
			key, value, ok := strings.Cut(o, "=")
			if !ok {
				return nil, fmt.Errorf("invalid --set %q: want KEY=VALUE", o)
			}
			list = append(list, key, value)
		}
		if err := cfg.MergeFromList(list); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// sources lists the files path resolves through.
func (a *app) sources(path string) ([]string, error) {
	doc, err := loader.NewResolver(a.loaderOptions()...).Resolve(path)
	if err != nil {
		return nil, err
	}
	return doc.Sources, nil
}
