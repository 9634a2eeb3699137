package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/trainconf/internal/config/diff"
	"github.com/dshills/trainconf/internal/config/scale"
	"github.com/dshills/trainconf/internal/config/scale/script"
	"github.com/dshills/trainconf/internal/config/tree"
	"github.com/dshills/trainconf/internal/config/watcher"
)

func newShowCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print the fully resolved config as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			if !watch {
				return nil
			}
			return a.watch(cmd, args[0], cfg)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print changes whenever a file in the base chain changes")
	return cmd
}

// watch re-resolves path whenever one of its sources changes and prints
// the difference against the previous version.
func (a *app) watch(cmd *cobra.Command, path string, current *tree.Tree) error {
	w, err := watcher.New(watcher.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer w.Close()

	srcs, err := a.sources(path)
	if err != nil {
		return err
	}
	if err := w.Add(srcs...); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w.OnChange(func(events []watcher.Event) {
		next, err := a.load(path)
		if err != nil {
			a.logger.Warn("Reload failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}

		record, err := diff.Diff(current, next)
		switch {
		case errors.Is(err, diff.ErrSchemaMismatch):
			a.logger.Info("Config layout changed", slog.String("detail", err.Error()))
			fmt.Fprint(out, next.String())
		case err != nil:
			a.logger.Warn("Diff failed", slog.String("error", err.Error()))
			return
		case record.Empty():
			a.logger.Debug("No effective change", slog.Int("events", len(events)))
		default:
			_ = printBlock(out, diff.TableFormatter{}.Format(record))
		}
		current = next

		// The base chain may have changed.
		if srcs, err := a.sources(path); err == nil {
			if err := w.Add(srcs...); err != nil {
				a.logger.Warn("Watching new sources failed", slog.String("error", err.Error()))
			}
		}
	})

	a.logger.Info("Watching config", slog.String("path", path), slog.Int("files", len(srcs)))
	err = w.Run(cmd.Context())
	if errors.Is(err, cmd.Context().Err()) {
		return nil
	}
	return err
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE PATH",
		Short: "Print the value at a dotted path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			v, ok := cfg.GetByPath(args[1])
			if !ok {
				return fmt.Errorf("%w: %s", tree.ErrKeyNotFound, args[1])
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
}

func printValue(out io.Writer, v any) error {
	switch val := v.(type) {
	case *tree.Tree:
		_, err := fmt.Fprint(out, val.String())
		return err
	case string:
		_, err := fmt.Fprintln(out, val)
		return err
	default:
		_, err := fmt.Fprintln(out, diff.FormatValue(val))
		return err
	}
}

// printBlock writes s terminated by exactly one newline.
func printBlock(out io.Writer, s string) error {
	_, err := fmt.Fprintln(out, strings.TrimRight(s, "\n"))
	return err
}

func newFlattenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten FILE",
		Short: "Print every leaf as PATH: VALUE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			flat := cfg.Flatten()
			out := cmd.OutOrStdout()
			for _, path := range cfg.Paths() {
				fmt.Fprintf(out, "%s: %s\n", path, diff.FormatValue(flat[path]))
			}
			return nil
		},
	}
}

func newHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE",
		Short: "Print the content hash of the resolved config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			h, err := cfg.Hash()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the leaves whose values differ between two configs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := formatterFor(format)
			if err != nil {
				return err
			}
			oldCfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			newCfg, err := a.load(args[1])
			if err != nil {
				return err
			}
			record, err := diff.Diff(oldCfg, newCfg)
			if err != nil {
				return err
			}
			if record.Empty() {
				a.logger.Info("Configs are identical")
				return nil
			}
			return printBlock(cmd.OutOrStdout(), formatter.Format(record))
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, plain)")
	return cmd
}

func formatterFor(name string) (diff.Formatter, error) {
	switch name {
	case "table":
		return diff.TableFormatter{}, nil
	case "plain":
		return diff.PlainFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}

func newScaleCmd(a *app) *cobra.Command {
	var (
		worldSize   int
		strategyDir string
	)

	cmd := &cobra.Command{
		Use:   "scale FILE",
		Short: "Rescale a config for a world size and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("world-size") {
				return errors.New("--world-size is required")
			}

			reg := scale.NewBuiltinRegistry()
			if strategyDir != "" {
				names, err := script.RegisterDir(reg, strategyDir, script.WithLogger(a.logger))
				if err != nil {
					return err
				}
				a.logger.Debug("Loaded scaling scripts",
					slog.String("dir", strategyDir),
					slog.Int("count", len(names)))
			}

			cfg, err := a.load(args[0])
			if err != nil {
				return err
			}
			cfg.Freeze()

			res, err := scale.NewScaler(scale.WithRegistry(reg), scale.WithLogger(a.logger)).Scale(cfg, worldSize)
			if err != nil {
				return err
			}
			if !res.Scaled {
				a.logger.Info("No scaling needed",
					slog.Int("reference_world_size", res.OldWorldSize),
					slog.Int("new_world_size", worldSize))
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Config.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&worldSize, "world-size", "n", 0, "number of worker processes")
	cmd.Flags().StringVar(&strategyDir, "strategy-dir", "", "directory of Lua scaling strategies (*.lua)")
	return cmd
}
