package filter

import (
	"fmt"
)

// Kind tags the variant held by a Node.
type Kind int

// Node variants.
const (
	KindLeaf Kind = iota
	KindAnd
	KindOr
	KindNot
	KindNor
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindAnd:
		return "$and"
	case KindOr:
		return "$or"
	case KindNot:
		return "$not"
	case KindNor:
		return "$nor"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op is a leaf comparison operator.
type Op string

// Supported leaf operators.
const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpIn     Op = "$in"
	OpNin    Op = "$nin"
	OpExists Op = "$exists"
	OpRegex  Op = "$regex"
)

var comparisonOps = map[Op]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// IsValid checks if the operator is supported.
func (o Op) IsValid() bool {
	return comparisonOps[o] || o == OpIn || o == OpNin || o == OpExists || o == OpRegex
}

// MaxNodeDepth bounds combinator nesting accepted from untrusted input.
const MaxNodeDepth = 32

// Value is a leaf operand that keeps null and undefined apart.
type Value struct {
	v   any
	set bool
}

// ValueOf wraps v. A nil v is an explicit null.
func ValueOf(v any) Value { return Value{v: v, set: true} }

// Null is the explicit null value.
func Null() Value { return Value{set: true} }

// Undefined is the absent value.
func Undefined() Value { return Value{} }

// Get returns the wrapped value (nil for null and undefined).
func (v Value) Get() any { return v.v }

// IsUndefined reports whether the value is absent.
func (v Value) IsUndefined() bool { return !v.set }

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool { return v.set && v.v == nil }

// Transform applies an operator to the field value before comparison.
// A leading *Transform argument is the nested input; otherwise the field itself is the input.
type Transform struct {
	Op   string
	Args []any
}

// Leaf compares the value at Path.
// Path with more than one segment traverses relation fields.
type Leaf struct {
	Path      []string
	Op        Op
	Value     Value
	Transform *Transform
}

// Node is the structured filter AST.
type Node struct {
	Kind     Kind
	Children []Node
	Inner    *Node
	Leaf     *Leaf
}

// And builds an $and combinator.
func And(children ...Node) Node { return Node{Kind: KindAnd, Children: children} }

// Or builds an $or combinator.
func Or(children ...Node) Node { return Node{Kind: KindOr, Children: children} }

// Nor builds a $nor combinator.
func Nor(children ...Node) Node { return Node{Kind: KindNor, Children: children} }

// Not negates n.
func Not(n Node) Node { return Node{Kind: KindNot, Inner: &n} }

// Cmp builds a leaf comparing path with op against v.
func Cmp(path []string, op Op, v any) Node {
	return Node{Kind: KindLeaf, Leaf: &Leaf{Path: path, Op: op, Value: ValueOf(v)}}
}

// LeafNode wraps l into a Node.
func LeafNode(l Leaf) Node { return Node{Kind: KindLeaf, Leaf: &l} }

// Validate checks operator whitelisting and operand shapes.
func (n Node) Validate() error {
	return n.validate(0)
}

func (n Node) validate(depth int) error {
	if depth > MaxNodeDepth {
		return fmt.Errorf("filter nested too deep (max %d)", MaxNodeDepth)
	}
	switch n.Kind {
	case KindAnd, KindOr, KindNor:
		for i, c := range n.Children {
			if err := c.validate(depth + 1); err != nil {
				return fmt.Errorf("%s[%d]: %w", n.Kind, i, err)
			}
		}
		return nil
	case KindNot:
		if n.Inner == nil {
			return fmt.Errorf("$not requires an operand")
		}
		return n.Inner.validate(depth + 1)
	case KindLeaf:
		if n.Leaf == nil {
			return fmt.Errorf("leaf node has no body")
		}
		return n.Leaf.validate()
	}
	return fmt.Errorf("unknown node kind %d", n.Kind)
}

func (l *Leaf) validate() error {
	for i, p := range l.Path {
		if p == "" {
			return fmt.Errorf("path segment %d is empty", i)
		}
	}
	if l.Transform != nil {
		if err := l.Transform.validate(); err != nil {
			return err
		}
	}
	if l.Op == "" {
		if l.Transform == nil {
			return fmt.Errorf("op is required")
		}
		return nil
	}
	if !l.Op.IsValid() {
		return fmt.Errorf("unsupported operator %q", l.Op)
	}
	switch l.Op {
	case OpIn, OpNin:
		if _, ok := asArray(l.Value.Get()); !ok {
			return fmt.Errorf("%s requires an array value", l.Op)
		}
	case OpExists:
		if _, ok := l.Value.Get().(bool); !ok {
			return fmt.Errorf("$exists requires a boolean value")
		}
	case OpRegex:
		if _, ok := l.Value.Get().(string); !ok {
			return fmt.Errorf("$regex requires a string pattern")
		}
	}
	return nil
}

func (t *Transform) validate() error {
	a, ok := arity(t.Op)
	if !ok {
		return fmt.Errorf("unsupported transform %q", t.Op)
	}
	nested := len(t.Args) > 0 && isTransform(t.Args[0])
	if nested {
		if err := t.Args[0].(*Transform).validate(); err != nil {
			return err
		}
	}
	explicit := len(t.Args)
	if nested {
		explicit--
	}
	switch a {
	case unary:
		if explicit > 0 {
			return fmt.Errorf("transform %q takes no arguments", t.Op)
		}
	case named:
		if want := len(namedOperands[t.Op]) - 1; explicit != want {
			return fmt.Errorf("transform %q takes %d arguments, got %d", t.Op, want, explicit)
		}
	}
	return nil
}

func isTransform(v any) bool {
	t, ok := v.(*Transform)
	return ok && t != nil
}
