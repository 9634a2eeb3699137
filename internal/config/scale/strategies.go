package scale

import (
	"fmt"
	"math"

	"github.com/dshills/trainconf/internal/config/tree"
)

// Names of the built-in strategies.
const (
	DefaultD2Configs           = "default_scale_d2_configs"
	DefaultQuantizationConfigs = "default_scale_quantization_configs"
)

func registerBuiltins(r *Registry) {
	r.MustRegister(DefaultD2Configs, Pipeline(
		ScaleLinear("SOLVER.BASE_LR", "SOLVER.BASE_LR_END"),
		ScaleInteger("SOLVER.IMS_PER_BATCH"),
		ScaleInverse(
			"SOLVER.MAX_ITER",
			"SOLVER.STEPS",
			"SOLVER.WARMUP_ITERS",
			"TEST.EVAL_PERIOD",
		),
	))
	r.MustRegister(DefaultQuantizationConfigs, ScaleInverse(
		"QUANTIZATION.QAT.START_ITER",
		"QUANTIZATION.QAT.ENABLE_OBSERVER_ITER",
		"QUANTIZATION.QAT.DISABLE_OBSERVER_ITER",
		"QUANTIZATION.QAT.FREEZE_BN_ITER",
	))
}

// Ratio returns newWorldSize divided by the reference world size in cfg.
func Ratio(cfg *tree.Tree, newWorldSize int) (float64, error) {
	ref, err := referenceSize(cfg)
	if err != nil {
		return 0, err
	}
	if ref <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", ReferencePath, ref)
	}
	return float64(newWorldSize) / float64(ref), nil
}

// Pipeline runs strategies in order as one strategy.
func Pipeline(strategies ...Strategy) Strategy {
	return StrategyFunc(func(cfg *tree.Tree, newWorldSize int) error {
		for _, s := range strategies {
			if err := s.Apply(cfg, newWorldSize); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScaleLinear multiplies the numbers at paths by the world size ratio.
// The result is always a float, so integer leaves become floats.
// Typical for learning rates. Absent paths are skipped.
func ScaleLinear(paths ...string) Strategy {
	return scaleEach(paths, func(v, ratio float64) float64 {
		return v * ratio
	}, func(f float64) any {
		return f
	})
}

// ScaleInteger multiplies the integers at paths by the world size ratio,
// truncating toward zero. Float leaves are scaled without truncation.
// Typical for batch sizes.
func ScaleInteger(paths ...string) Strategy {
	return scaleEach(paths, func(v, ratio float64) float64 {
		return v * ratio
	}, func(f float64) any {
		return int64(math.Trunc(f))
	})
}

// ScaleInverse divides the numbers at paths by the world size ratio,
// rounding integer leaves half to even. Typical for iteration counts.
// Sequences are scaled element-wise.
func ScaleInverse(paths ...string) Strategy {
	return scaleEach(paths, func(v, ratio float64) float64 {
		return v / ratio
	}, func(f float64) any {
		return int64(math.RoundToEven(f))
	})
}

// scaleFunc computes the scaled number. fromInt converts the result for
// leaves that held an integer; float leaves always stay float.
type scaleFunc func(v, ratio float64) float64

func scaleEach(paths []string, fn scaleFunc, fromInt func(float64) any) Strategy {
	return StrategyFunc(func(cfg *tree.Tree, newWorldSize int) error {
		ratio, err := Ratio(cfg, newWorldSize)
		if err != nil {
			return err
		}
		for _, path := range paths {
			v, ok := cfg.GetByPath(path)
			if !ok {
				continue
			}
			scaled, err := scaleValue(path, v, ratio, fn, fromInt)
			if err != nil {
				return err
			}
			if err := cfg.Set(path, scaled); err != nil {
				return err
			}
		}
		return nil
	})
}

func scaleValue(path string, v any, ratio float64, fn scaleFunc, fromInt func(float64) any) (any, error) {
	switch n := v.(type) {
	case int64:
		return fromInt(fn(float64(n), ratio)), nil
	case float64:
		return fn(n, ratio), nil
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			s, err := scaleValue(fmt.Sprintf("%s[%d]", path, i), item, ratio, fn, fromInt)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, &tree.TypeError{Path: path, Expected: "number", Actual: fmt.Sprintf("%T", v)}
	}
}
