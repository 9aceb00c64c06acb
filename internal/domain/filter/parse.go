package filter

import (
	"encoding/json"
	"fmt"
)

var leafKeys = map[string]bool{"path": true, "op": true, "value": true, "transform": true}

// Parse converts decoded JSON into a Node with exhaustive shape validation.
func Parse(raw any) (Node, error) {
	n, err := parse(raw, 0)
	if err != nil {
		return Node{}, err
	}
	if err := n.Validate(); err != nil {
		return Node{}, err
	}
	return n, nil
}

// ParseJSON decodes data and parses it into a Node.
func ParseJSON(data []byte) (Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Node{}, fmt.Errorf("decode filter: %w", err)
	}
	return Parse(raw)
}

func parse(raw any, depth int) (Node, error) {
	if depth > MaxNodeDepth {
		return Node{}, fmt.Errorf("filter nested too deep (max %d)", MaxNodeDepth)
	}
	m, ok := asMap(raw)
	if !ok {
		return Node{}, fmt.Errorf("filter node must be an object, got %T", raw)
	}

	if _, isLeaf := m["path"]; isLeaf {
		return parseLeaf(m)
	}

	key, val, ok := singleKey(m)
	if !ok {
		return Node{}, fmt.Errorf("combinator node must have exactly one key")
	}
	switch key {
	case "$and", "$or", "$nor":
		arr, ok := asArray(val)
		if !ok {
			return Node{}, fmt.Errorf("%s requires an array", key)
		}
		children := make([]Node, 0, len(arr))
		for i, e := range arr {
			c, err := parse(e, depth+1)
			if err != nil {
				return Node{}, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			children = append(children, c)
		}
		kind := map[string]Kind{"$and": KindAnd, "$or": KindOr, "$nor": KindNor}[key]
		return Node{Kind: kind, Children: children}, nil
	case "$not":
		inner, err := parse(val, depth+1)
		if err != nil {
			return Node{}, fmt.Errorf("$not: %w", err)
		}
		return Not(inner), nil
	}
	return Node{}, fmt.Errorf("unknown filter key %q", key)
}

func parseLeaf(m map[string]any) (Node, error) {
	for k := range m {
		if !leafKeys[k] {
			return Node{}, fmt.Errorf("unknown leaf key %q", k)
		}
	}

	rawPath, ok := asArray(m["path"])
	if !ok {
		return Node{}, fmt.Errorf("path must be an array of strings")
	}
	path := make([]string, 0, len(rawPath))
	for _, p := range rawPath {
		s, ok := p.(string)
		if !ok {
			return Node{}, fmt.Errorf("path must be an array of strings")
		}
		path = append(path, s)
	}

	l := Leaf{Path: path, Value: Undefined()}
	if rawOp, present := m["op"]; present && rawOp != nil {
		s, ok := rawOp.(string)
		if !ok {
			return Node{}, fmt.Errorf("op must be a string")
		}
		l.Op = Op(s)
	}
	if v, present := m["value"]; present {
		l.Value = ValueOf(v)
	}
	if rawT, present := m["transform"]; present && rawT != nil {
		t, err := parseTransform(rawT)
		if err != nil {
			return Node{}, err
		}
		l.Transform = t
	}
	return LeafNode(l), nil
}

func parseTransform(raw any) (*Transform, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("transform must be an object")
	}
	op, ok := m["op"].(string)
	if !ok || op == "" {
		return nil, fmt.Errorf("transform requires an op")
	}
	t := &Transform{Op: op}
	if rawArgs, present := m["args"]; present && rawArgs != nil {
		args, ok := asArray(rawArgs)
		if !ok {
			return nil, fmt.Errorf("transform args must be an array")
		}
		for i, a := range args {
			if i == 0 {
				if am, isMap := asMap(a); isMap {
					if nestedOp, _ := am["op"].(string); IsTransformOp(nestedOp) {
						nested, err := parseTransform(am)
						if err != nil {
							return nil, err
						}
						t.Args = append(t.Args, nested)
						continue
					}
				}
			}
			t.Args = append(t.Args, a)
		}
	}
	return t, nil
}

// MarshalJSON renders the node in its wire shape. Undefined leaf values are omitted.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.wire())
}

func (n Node) wire() any {
	switch n.Kind {
	case KindAnd, KindOr, KindNor:
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = c.wire()
		}
		return map[string]any{n.Kind.String(): children}
	case KindNot:
		if n.Inner == nil {
			return map[string]any{"$not": nil}
		}
		return map[string]any{"$not": n.Inner.wire()}
	}
	if n.Leaf == nil {
		return nil
	}
	out := map[string]any{"path": n.Leaf.Path}
	if n.Leaf.Path == nil {
		out["path"] = []string{}
	}
	if n.Leaf.Op != "" {
		out["op"] = n.Leaf.Op
	}
	if !n.Leaf.Value.IsUndefined() {
		out["value"] = n.Leaf.Value.Get()
	}
	if n.Leaf.Transform != nil {
		out["transform"] = n.Leaf.Transform.wire()
	}
	return out
}

func (t *Transform) wire() map[string]any {
	args := make([]any, len(t.Args))
	for i, a := range t.Args {
		if nested, ok := a.(*Transform); ok && nested != nil {
			args[i] = nested.wire()
			continue
		}
		args[i] = a
	}
	return map[string]any{"op": t.Op, "args": args}
}
