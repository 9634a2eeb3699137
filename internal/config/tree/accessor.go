package tree

import "fmt"

// Int returns the integer at path.
func (t *Tree) Int(path string) (int64, error) {
	v, err := t.value(path)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
	return i, nil
}

// Float returns the number at path. Integers are converted.
func (t *Tree) Float(path string) (float64, error) {
	v, err := t.value(path)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, &TypeError{Path: path, Expected: "float", Actual: typeName(v)}
	}
}

// StringAt returns the string at path.
func (t *Tree) StringAt(path string) (string, error) {
	v, err := t.value(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// Bool returns the boolean at path.
func (t *Tree) Bool(path string) (bool, error) {
	v, err := t.value(path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// List returns a copy of the sequence at path.
func (t *Tree) List(path string) ([]any, error) {
	v, err := t.value(path)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, &TypeError{Path: path, Expected: "list", Actual: typeName(v)}
	}
	return cloneValue(l).([]any), nil
}

// Strings returns the sequence at path as strings.
func (t *Tree) Strings(path string) ([]string, error) {
	l, err := t.List(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(l))
	for i, item := range l {
		s, ok := item.(string)
		if !ok {
			return nil, &TypeError{Path: fmt.Sprintf("%s[%d]", path, i), Expected: "string", Actual: typeName(item)}
		}
		out[i] = s
	}
	return out, nil
}

func (t *Tree) value(path string) (any, error) {
	v, ok := t.GetByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}
	return v, nil
}
