package scale

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dshills/trainconf/internal/config/diff"
	"github.com/dshills/trainconf/internal/config/tree"
)

// Config fields read by the scaler.
const (
	// ReferencePath holds the world size the config was tuned for.
	// Absent or zero disables scaling.
	ReferencePath = "SOLVER.REFERENCE_WORLD_SIZE"

	// MethodsPath holds the ordered list of strategy names.
	MethodsPath = "SOLVER.AUTO_SCALING_METHODS"
)

// Result describes one Scale call.
type Result struct {
	// Config is the tree passed to Scale, mutated in place.
	Config *tree.Tree

	// Scaled is false when no scaling was needed.
	Scaled bool

	OldWorldSize int
	NewWorldSize int

	// Diff lists the changed leaves, including the reference world size.
	Diff diff.Record

	// ID correlates the log lines of this call.
	ID string
}

// Scaler adjusts configs tuned for one world size to another.
type Scaler struct {
	registry  *Registry
	logger    *slog.Logger
	formatter diff.Formatter
}

// Option configures a Scaler.
type Option func(*Scaler)

// WithRegistry sets the strategy registry. Defaults to Default().
func WithRegistry(r *Registry) Option {
	return func(s *Scaler) {
		s.registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scaler) {
		s.logger = logger
	}
}

// WithFormatter sets how the change record is rendered in the log.
// Defaults to diff.TableFormatter.
func WithFormatter(f diff.Formatter) Option {
	return func(s *Scaler) {
		s.formatter = f
	}
}

// NewScaler creates a Scaler.
func NewScaler(opts ...Option) *Scaler {
	s := &Scaler{}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.formatter == nil {
		s.formatter = diff.TableFormatter{}
	}
	return s
}

// Scale rescales cfg in place for newWorldSize.
//
// Nothing changes when the reference world size is absent, zero, or
// already equal to newWorldSize; newWorldSize is only validated after
// that check. Otherwise each strategy listed at
// MethodsPath runs in order, the reference world size is set to
// newWorldSize, and the change record is logged. The frozen state of cfg
// is restored on every return path. A failing strategy may leave cfg
// partially scaled.
func (s *Scaler) Scale(cfg *tree.Tree, newWorldSize int) (Result, error) {
	res := Result{Config: cfg, NewWorldSize: newWorldSize}
	s.registry.Seal()

	ref, err := referenceSize(cfg)
	if err != nil {
		return res, err
	}
	res.OldWorldSize = ref
	if ref == 0 || ref == newWorldSize {
		return res, nil
	}
	if newWorldSize <= 0 {
		return res, fmt.Errorf("%w: %d", ErrInvalidWorldSize, newWorldSize)
	}

	strategies, names, err := s.pipeline(cfg)
	if err != nil {
		return res, err
	}

	res.ID = uuid.NewString()
	logger := s.logger.With(slog.String("scale_id", res.ID))

	snapshot := cfg.Clone()
	if cfg.IsFrozen() {
		cfg.Unfreeze()
		defer cfg.Freeze()
	}

	for i, strategy := range strategies {
		logger.Info("Applying auto scaling method",
			slog.String("strategy", names[i]),
			slog.Int("reference_world_size", ref),
			slog.Int("new_world_size", newWorldSize))

		if err := strategy.Apply(cfg, newWorldSize); err != nil {
			return res, fmt.Errorf("auto scaling method %s: %w", names[i], err)
		}
		after, err := referenceSize(cfg)
		if err != nil || after != ref {
			return res, fmt.Errorf("%w: %s", ErrReferenceMutated, names[i])
		}
	}

	if err := cfg.Set(ReferencePath, newWorldSize); err != nil {
		return res, err
	}

	record, err := diff.Diff(snapshot, cfg)
	if err != nil {
		return res, fmt.Errorf("auto scaling changed the config layout: %w", err)
	}
	res.Scaled = true
	res.Diff = record

	logger.Info("Auto-scaled the config according to the actual world size",
		slog.Int("reference_world_size", ref),
		slog.Int("new_world_size", newWorldSize),
		slog.String("changes", "\n"+s.formatter.Format(record)))

	return res, nil
}

// pipeline resolves every strategy name before any runs.
func (s *Scaler) pipeline(cfg *tree.Tree) ([]Strategy, []string, error) {
	var names []string
	if cfg.Has(MethodsPath) {
		var err error
		names, err = cfg.Strings(MethodsPath)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrEmptyPipeline, MethodsPath)
	}

	strategies := make([]Strategy, len(names))
	for i, name := range names {
		st, err := s.registry.Get(name)
		if err != nil {
			return nil, nil, err
		}
		strategies[i] = st
	}
	return strategies, names, nil
}

func referenceSize(cfg *tree.Tree) (int, error) {
	v, ok := cfg.GetByPath(ReferencePath)
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, &tree.TypeError{Path: ReferencePath, Expected: "int", Actual: fmt.Sprintf("%T", v)}
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s is %d", ErrInvalidWorldSize, ReferencePath, n)
	}
	return int(n), nil
}

var defaultScaler = NewScaler()

// AutoScale rescales cfg for newWorldSize using the process-wide registry
// and returns cfg.
func AutoScale(cfg *tree.Tree, newWorldSize int) (*tree.Tree, error) {
	res, err := defaultScaler.Scale(cfg, newWorldSize)
	return res.Config, err
}
