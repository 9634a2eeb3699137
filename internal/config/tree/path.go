package tree

import "strings"

// Get returns the value stored directly under key in this node.
func (t *Tree) Get(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

// GetByPath retrieves the value at a dotted path. The boolean is false if
// any segment is missing or an intermediate segment is not a node.
func (t *Tree) GetByPath(path string) (any, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return nil, false
	}

	node := t
	for _, part := range parts[:len(parts)-1] {
		sub, ok := node.values[part].(*Tree)
		if !ok {
			return nil, false
		}
		node = sub
	}

	v, ok := node.values[parts[len(parts)-1]]
	return v, ok
}

// Lookup is like GetByPath but returns Absent for unresolvable paths.
func (t *Tree) Lookup(path string) any {
	if v, ok := t.GetByPath(path); ok {
		return v
	}
	return Absent
}

// Has reports whether path resolves to a value.
func (t *Tree) Has(path string) bool {
	_, ok := t.GetByPath(path)
	return ok
}

// Sub returns the sub-tree at path.
func (t *Tree) Sub(path string) (*Tree, bool) {
	v, ok := t.GetByPath(path)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Tree)
	return sub, ok
}

// Set stores value at a dotted path, creating intermediate nodes as needed.
// The value is normalized and copied; maps become sub-trees.
func (t *Tree) Set(path string, value any) error {
	parts, ok := splitPath(path)
	if !ok {
		return ErrInvalidPath
	}
	if t.frozen {
		return &FrozenError{Op: "set", Path: path}
	}

	n, err := normalize(value)
	if err != nil {
		return &TypeError{Path: path, Expected: "config value", Actual: err.Error()}
	}

	node := t
	for i, part := range parts[:len(parts)-1] {
		next, exists := node.values[part]
		if !exists {
			sub := &Tree{values: make(map[string]any)}
			node.values[part] = sub
			node = sub
			continue
		}
		sub, ok := next.(*Tree)
		if !ok {
			return &TypeError{Path: strings.Join(parts[:i+1], "."), Expected: nodeType, Actual: typeName(next)}
		}
		if sub.frozen {
			return &FrozenError{Op: "set", Path: path}
		}
		node = sub
	}

	if sub, ok := n.(*Tree); ok {
		sub.setFrozen(node.frozen)
	}
	node.values[parts[len(parts)-1]] = n
	return nil
}

// Delete removes the value at path. Returns false if nothing was removed.
func (t *Tree) Delete(path string) (bool, error) {
	parts, ok := splitPath(path)
	if !ok {
		return false, ErrInvalidPath
	}
	if t.frozen {
		return false, &FrozenError{Op: "delete", Path: path}
	}

	node := t
	for _, part := range parts[:len(parts)-1] {
		sub, ok := node.values[part].(*Tree)
		if !ok {
			return false, nil
		}
		node = sub
	}

	key := parts[len(parts)-1]
	if _, exists := node.values[key]; !exists {
		return false, nil
	}
	if node.frozen {
		return false, &FrozenError{Op: "delete", Path: path}
	}
	delete(node.values, key)
	return true, nil
}

