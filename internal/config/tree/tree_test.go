package tree

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dshills/trainconf/internal/config/loader"
	"github.com/dshills/trainconf/internal/config/migrate"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	return MustFromMap(map[string]any{
		"SOLVER": map[string]any{
			"BASE_LR":  0.1,
			"MAX_ITER": 1000,
			"STEPS":    []int{600, 800},
		},
		"MODEL": map[string]any{
			"NAME":    "faster_rcnn",
			"WEIGHTS": nil,
			"FBNET_V2": map[string]any{
				"ARCH_DEF": []any{},
			},
		},
		"OUTPUT_DIR": "/tmp/out",
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFromMap_Normalizes(t *testing.T) {
	tr := sampleTree(t)

	v, ok := tr.GetByPath("SOLVER.MAX_ITER")
	require.True(t, ok)
	assert.Equal(t, int64(1000), v)

	v, ok = tr.GetByPath("SOLVER.STEPS")
	require.True(t, ok)
	assert.Equal(t, []any{int64(600), int64(800)}, v)

	sub, ok := tr.Sub("MODEL")
	require.True(t, ok)
	assert.Equal(t, []string{"FBNET_V2", "NAME", "WEIGHTS"}, sub.Keys())
}

func TestFromMap_Invalid(t *testing.T) {
	_, err := FromMap(map[string]any{"A": map[int]any{1: "x"}})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = FromMap(map[string]any{"": 1})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestClone(t *testing.T) {
	orig := sampleTree(t)
	require.NoError(t, orig.DeprecateKey("MODEL.OLD_FLAG"))
	orig.Freeze()

	c := orig.Clone()
	assert.True(t, c.Equal(orig))
	assert.Equal(t, mustHash(t, orig), mustHash(t, c))
	assert.True(t, c.IsFrozen())
	assert.Equal(t, []string{"MODEL.OLD_FLAG"}, c.DeprecatedKeys())

	c.Unfreeze()
	require.NoError(t, c.Set("SOLVER.BASE_LR", 0.5))
	steps, ok := c.GetByPath("SOLVER.STEPS")
	require.True(t, ok)
	steps.([]any)[0] = int64(1)

	assert.True(t, orig.IsFrozen())
	lr, err := orig.Float("SOLVER.BASE_LR")
	require.NoError(t, err)
	assert.Equal(t, 0.1, lr)
	origSteps, err := orig.List("SOLVER.STEPS")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(600), int64(800)}, origSteps)
	assert.False(t, c.Equal(orig))
}

func TestEqualAndHash_InsertionOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.Set("Z.b", 1))
	require.NoError(t, a.Set("A", "x"))
	require.NoError(t, a.Set("Z.a", []any{1.5, "s"}))

	b := New()
	require.NoError(t, b.Set("Z.a", []any{1.5, "s"}))
	require.NoError(t, b.Set("A", "x"))
	require.NoError(t, b.Set("Z.b", 1))

	assert.True(t, a.Equal(b))
	assert.Equal(t, mustHash(t, a), mustHash(t, b))
	assert.Equal(t, a.Flatten(), b.Flatten())
	assert.Equal(t, a.Paths(), b.Paths())
}

func mustHash(t *testing.T, tr *Tree) string {
	t.Helper()
	h, err := tr.Hash()
	require.NoError(t, err)
	return h
}

type unencodable struct{}

func (unencodable) MarshalYAML() (any, error) {
	return nil, errors.New("cannot encode")
}

func TestHash_EncodeError(t *testing.T) {
	a := &Tree{values: map[string]any{"A": unencodable{}}}
	b := &Tree{values: map[string]any{"B": unencodable{}}}

	_, err := a.Hash()
	assert.ErrorContains(t, err, "cannot encode")
	_, err = b.Hash()
	assert.Error(t, err)
	assert.False(t, a.Equal(b))
}

func TestEqual_TypeSensitive(t *testing.T) {
	i := MustFromMap(map[string]any{"X": 1})
	f := MustFromMap(map[string]any{"X": 1.0})
	s := MustFromMap(map[string]any{"X": "1"})

	assert.False(t, i.Equal(f))
	assert.False(t, i.Equal(s))
	assert.NotEqual(t, mustHash(t, i), mustHash(t, f))
}

func TestDump_RoundTrip(t *testing.T) {
	tr := MustFromMap(map[string]any{
		"F":     2.0,
		"I":     3,
		"S":     "true",
		"N":     nil,
		"L":     []any{},
		"E":     map[string]any{},
		"DICTS": []any{map[string]any{"b": 1, "a": 2}},
	})

	out, err := tr.Dump()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(out, &raw))
	back, err := FromMap(raw)
	require.NoError(t, err)
	assert.True(t, tr.Equal(back), "dump:\n%s", out)

	v, _ := back.GetByPath("F")
	assert.Equal(t, 2.0, v)
	v, _ = back.GetByPath("S")
	assert.Equal(t, "true", v)
}

func TestFlatten(t *testing.T) {
	tr := sampleTree(t)

	flat := tr.Flatten()
	assert.Equal(t, map[string]any{
		"MODEL.FBNET_V2.ARCH_DEF": []any{},
		"MODEL.NAME":              "faster_rcnn",
		"MODEL.WEIGHTS":           nil,
		"OUTPUT_DIR":              "/tmp/out",
		"SOLVER.BASE_LR":          0.1,
		"SOLVER.MAX_ITER":         int64(1000),
		"SOLVER.STEPS":            []any{int64(600), int64(800)},
	}, flat)

	for _, v := range flat {
		_, isNode := v.(*Tree)
		assert.False(t, isNode)
	}

	assert.Equal(t, []string{
		"MODEL.FBNET_V2.ARCH_DEF",
		"MODEL.NAME",
		"MODEL.WEIGHTS",
		"OUTPUT_DIR",
		"SOLVER.BASE_LR",
		"SOLVER.MAX_ITER",
		"SOLVER.STEPS",
	}, tr.Paths())
}

func TestFlatten_EmptyNodeHasNoLeaves(t *testing.T) {
	tr := MustFromMap(map[string]any{"A": map[string]any{}, "B": 1})
	assert.Equal(t, map[string]any{"B": int64(1)}, tr.Flatten())
}

func TestGetByPath(t *testing.T) {
	tr := sampleTree(t)

	tests := []struct {
		path    string
		want    any
		present bool
	}{
		{"SOLVER.BASE_LR", 0.1, true},
		{"MODEL.WEIGHTS", nil, true},
		{"MODEL.MISSING", nil, false},
		{"OUTPUT_DIR.SUB", nil, false},
		{"NOPE.X", nil, false},
		{"", nil, false},
		{"SOLVER..BASE_LR", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := tr.GetByPath(tt.path)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)

			if tt.present {
				assert.False(t, IsAbsent(tr.Lookup(tt.path)))
			} else {
				assert.True(t, IsAbsent(tr.Lookup(tt.path)))
			}
		})
	}

	// A present nil is not absent.
	assert.Nil(t, tr.Lookup("MODEL.WEIGHTS"))
}

func TestFrozen(t *testing.T) {
	tr := sampleTree(t)
	tr.Freeze()
	tr.Freeze()
	assert.True(t, tr.IsFrozen())

	sub, ok := tr.Sub("SOLVER")
	require.True(t, ok)
	assert.True(t, sub.IsFrozen())

	_, delErr := tr.Delete("OUTPUT_DIR")
	errs := []error{
		tr.Set("SOLVER.BASE_LR", 1.0),
		sub.Set("BASE_LR", 1.0),
		tr.MergeFromTree(New()),
		tr.MergeFromMap(map[string]any{"A": 1}),
		tr.MergeFromList([]string{"SOLVER.BASE_LR", "1.0"}),
		tr.MergeFromFile("/does/not/matter.yaml"),
		tr.DeprecateKey("A"),
		delErr,
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrFrozen)
	}

	tr.Unfreeze()
	tr.Unfreeze()
	assert.False(t, sub.IsFrozen())
	assert.NoError(t, sub.Set("BASE_LR", 1.0))
}

func TestSet(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Set("A.B.C", 1))
	assert.Equal(t, int64(1), tr.Lookup("A.B.C"))

	err := tr.Set("A.B.C.D", 2)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, err, ErrNotNode)
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "A.B.C", typeErr.Path)

	_, err = tr.Int("A.B")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.NotErrorIs(t, err, ErrNotNode)

	assert.ErrorIs(t, tr.Set("", 1), ErrInvalidPath)

	src := map[string]any{"X": 1}
	require.NoError(t, tr.Set("M", src))
	src["X"] = 2
	assert.Equal(t, int64(1), tr.Lookup("M.X"))
}

func TestDelete(t *testing.T) {
	tr := sampleTree(t)

	ok, err := tr.Delete("MODEL.NAME")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, tr.Has("MODEL.NAME"))

	ok, err = tr.Delete("MODEL.NAME")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeFromTree(t *testing.T) {
	dst := sampleTree(t)
	src := MustFromMap(map[string]any{
		"SOLVER": map[string]any{
			"BASE_LR": 0.02,
			"STEPS":   []any{100},
			"NEW_KEY": true,
		},
		"OUTPUT_DIR": map[string]any{"ROOT": "/data"},
		"EXTRA":      "x",
	})

	require.NoError(t, dst.MergeFromTree(src))

	assert.Equal(t, 0.02, dst.Lookup("SOLVER.BASE_LR"))
	assert.Equal(t, int64(1000), dst.Lookup("SOLVER.MAX_ITER"))
	assert.Equal(t, []any{int64(100)}, dst.Lookup("SOLVER.STEPS"))
	assert.Equal(t, true, dst.Lookup("SOLVER.NEW_KEY"))
	assert.Equal(t, "/data", dst.Lookup("OUTPUT_DIR.ROOT"))
	assert.Equal(t, "x", dst.Lookup("EXTRA"))
	assert.Equal(t, "faster_rcnn", dst.Lookup("MODEL.NAME"))

	// Mutating the merged result leaves the source alone.
	require.NoError(t, dst.Set("SOLVER.BASE_LR", 9.0))
	assert.Equal(t, 0.02, src.Lookup("SOLVER.BASE_LR"))
}

func TestMergeFromTree_NodeReplacesScalar(t *testing.T) {
	dst := MustFromMap(map[string]any{"A": 1})
	require.NoError(t, dst.MergeFromTree(MustFromMap(map[string]any{"A": map[string]any{"B": 2}})))
	assert.Equal(t, int64(2), dst.Lookup("A.B"))

	require.NoError(t, dst.MergeFromTree(MustFromMap(map[string]any{"A": "flat"})))
	assert.Equal(t, "flat", dst.Lookup("A"))
}

func TestMergeFromTree_Migration(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	dst := New(WithLogger(logger))
	src := MustFromMap(map[string]any{
		"MODEL": map[string]any{"FBNET_V2": map[string]any{"ARCH_DEF": ""}},
	})

	require.NoError(t, dst.MergeFromTree(src))
	assert.Equal(t, []any{}, dst.Lookup("MODEL.FBNET_V2.ARCH_DEF"))
	assert.Equal(t, "", src.Lookup("MODEL.FBNET_V2.ARCH_DEF"))
	assert.Contains(t, buf.String(), "MODEL.FBNET_V2.ARCH_DEF")
}

func TestMergeFromTree_MigrationsDisabled(t *testing.T) {
	dst := New(WithMigrations(nil))
	src := MustFromMap(map[string]any{
		"MODEL": map[string]any{"FBNET_V2": map[string]any{"ARCH_DEF": ""}},
	})

	require.NoError(t, dst.MergeFromTree(src))
	assert.Equal(t, "", dst.Lookup("MODEL.FBNET_V2.ARCH_DEF"))
}

func TestMergeFromTree_CustomMigration(t *testing.T) {
	set := migrate.NewSet([]migrate.Rule{
		{Path: "INPUT.FORMAT", Old: "RGB", New: "BGR"},
	})
	dst := New(WithMigrations(set))
	require.NoError(t, dst.MergeFromMap(map[string]any{"INPUT": map[string]any{"FORMAT": "RGB"}}))
	assert.Equal(t, "BGR", dst.Lookup("INPUT.FORMAT"))
}

func TestMergeFromTree_DeprecatedKeys(t *testing.T) {
	var buf bytes.Buffer
	dst := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, dst.Set("MODEL.NAME", "a"))
	require.NoError(t, dst.DeprecateKey("MODEL.OLD"))

	require.NoError(t, dst.MergeFromMap(map[string]any{
		"MODEL": map[string]any{"OLD": 1, "NAME": "b"},
	}))

	assert.False(t, dst.Has("MODEL.OLD"))
	assert.Equal(t, "b", dst.Lookup("MODEL.NAME"))
	assert.Contains(t, buf.String(), "MODEL.OLD")
}

func TestMergeFromTree_DeprecatedKeyUnderNewNode(t *testing.T) {
	var buf bytes.Buffer
	dst := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, dst.DeprecateKey("MODEL.OLD"))
	require.NoError(t, dst.DeprecateKey("A.B.GONE"))
	require.NoError(t, dst.Set("A", 1))

	require.NoError(t, dst.MergeFromMap(map[string]any{
		"MODEL": map[string]any{"OLD": 1, "NAME": "b"},
		"A":     map[string]any{"B": map[string]any{"GONE": true, "KEPT": 2}},
	}))

	assert.False(t, dst.Has("MODEL.OLD"))
	assert.Equal(t, "b", dst.Lookup("MODEL.NAME"))
	assert.False(t, dst.Has("A.B.GONE"))
	assert.Equal(t, int64(2), dst.Lookup("A.B.KEPT"))
	assert.Contains(t, buf.String(), "MODEL.OLD")
	assert.Contains(t, buf.String(), "A.B.GONE")
}

func TestMergeFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "SOLVER:\n  BASE_LR: 0.1\n  MAX_ITER: 100\n")
	child := writeFile(t, dir, "child.yaml", "_BASE_: base.yaml\nSOLVER:\n  MAX_ITER: 200\n")

	tr := New()
	require.NoError(t, tr.MergeFromFile(child))

	assert.Equal(t, 0.1, tr.Lookup("SOLVER.BASE_LR"))
	assert.Equal(t, int64(200), tr.Lookup("SOLVER.MAX_ITER"))
	assert.False(t, tr.Has(loader.DefaultBaseKey))
}

func TestMergeFromFile_MissingBaseLeavesTreeUntouched(t *testing.T) {
	dir := t.TempDir()
	child := writeFile(t, dir, "child.yaml", "_BASE_: nope.yaml\nA: 2\n")

	tr := MustFromMap(map[string]any{"A": 1})
	before := mustHash(t, tr)

	err := tr.MergeFromFile(child)
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrLoad)
	assert.Equal(t, before, mustHash(t, tr))
}

func TestMergeFromFile_Cycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "_BASE_: b.yaml\n")
	writeFile(t, dir, "b.yaml", "_BASE_: a.yaml\n")

	err := New().MergeFromFile(a)
	assert.ErrorIs(t, err, loader.ErrCyclicInheritance)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.toml", "[SOLVER]\nBASE_LR = 0.3\n")

	tr, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, tr.Lookup("SOLVER.BASE_LR"))
}

func TestMergeFromList(t *testing.T) {
	tr := sampleTree(t)

	require.NoError(t, tr.MergeFromList([]string{
		"SOLVER.BASE_LR", "1",
		"SOLVER.STEPS", "[10, 20]",
		"MODEL.NAME", "1e-3",
		"MODEL.WEIGHTS", "/w.pkl",
	}))

	assert.Equal(t, 1.0, tr.Lookup("SOLVER.BASE_LR"))
	assert.Equal(t, []any{int64(10), int64(20)}, tr.Lookup("SOLVER.STEPS"))
	assert.Equal(t, "1e-3", tr.Lookup("MODEL.NAME"))
	assert.Equal(t, "/w.pkl", tr.Lookup("MODEL.WEIGHTS"))
}

func TestMergeFromList_Errors(t *testing.T) {
	tests := []struct {
		name string
		list []string
		want error
	}{
		{"odd", []string{"SOLVER.BASE_LR"}, ErrOddOverrides},
		{"unknown key", []string{"SOLVER.NOPE", "1"}, ErrKeyNotFound},
		{"int to list", []string{"SOLVER.MAX_ITER", "[1]"}, ErrTypeMismatch},
		{"scalar onto node", []string{"SOLVER", "3"}, ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sampleTree(t)
			before := mustHash(t, tr)
			assert.ErrorIs(t, tr.MergeFromList(append([]string{"SOLVER.BASE_LR", "0.5"}, tt.list...)), tt.want)
			assert.Equal(t, before, mustHash(t, tr), "failed overrides must not be partially applied")
		})
	}
}

type foreignNode struct {
	data       map[string]any
	frozen     bool
	deprecated []string
}

func (f foreignNode) AsMap() map[string]any    { return f.data }
func (f foreignNode) IsFrozen() bool           { return f.frozen }
func (f foreignNode) DeprecatedKeys() []string { return f.deprecated }

func TestCast(t *testing.T) {
	src := foreignNode{
		data:       map[string]any{"A": map[string]any{"B": 1}},
		frozen:     true,
		deprecated: []string{"A.OLD"},
	}

	tr, err := Cast(src)
	require.NoError(t, err)
	assert.True(t, tr.IsFrozen())
	assert.True(t, tr.IsDeprecated("A.OLD"))
	assert.Equal(t, int64(1), tr.Lookup("A.B"))

	again, err := Cast(tr)
	require.NoError(t, err)
	assert.True(t, again.Equal(tr))
	assert.Equal(t, tr.DeprecatedKeys(), again.DeprecatedKeys())
	assert.True(t, again.IsFrozen())
}

func TestAccessors(t *testing.T) {
	tr := MustFromMap(map[string]any{
		"I": 4, "F": 0.5, "S": "x", "B": true,
		"L": []string{"a", "b"}, "M": []any{"a", 1},
	})

	i, err := tr.Int("I")
	require.NoError(t, err)
	assert.Equal(t, int64(4), i)

	f, err := tr.Float("I")
	require.NoError(t, err)
	assert.Equal(t, 4.0, f)

	s, err := tr.StringAt("S")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	b, err := tr.Bool("B")
	require.NoError(t, err)
	assert.True(t, b)

	l, err := tr.Strings("L")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l)

	_, err = tr.Strings("M")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = tr.Int("F")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = tr.Float("MISSING")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
