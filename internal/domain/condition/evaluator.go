// Package condition evaluates structured conditions against in-memory records.
package condition

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// MaxPatternLength bounds user-supplied $regex patterns.
const MaxPatternLength = 256

const maxDepth = 32

// UserPlaceholder in an operand is replaced by the evaluating user's id.
const UserPlaceholder = "$$USER"

var comparisonOps = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$regex": true,
}

// Evaluator checks conditions without touching the store.
type Evaluator struct {
	logger *zap.Logger
}

// New creates an Evaluator. A nil logger discards warnings.
func New(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether record satisfies cond.
//
// Without a model, cond must be a single operator applied to a pre-resolved
// [left, right] pair; any other shape or operator is false.
// With a model, unknown operators are logged and match.
func (e *Evaluator) Evaluate(
	m *model.Model, cond any, record map[string]any, models []model.Model, user domain.User,
) bool {
	if m == nil {
		return evalTuple(cond)
	}
	s := scope{e: e, model: m, models: models, user: user}
	return s.eval(cond, record, 0)
}

func evalTuple(cond any) bool {
	c, ok := asMap(cond)
	if !ok || len(c) != 1 {
		return false
	}
	for op, operand := range c {
		pair, ok := asArray(operand)
		if !ok || len(pair) != 2 {
			return false
		}
		left, right := pair[0], pair[1]
		switch op {
		case "$and":
			return toBool(left) && toBool(right)
		case "$or":
			return toBool(left) || toBool(right)
		}
		if !comparisonOps[op] {
			return false
		}
		return compareOp(op, inferKind(left), left, right)
	}
	return false
}

type scope struct {
	e      *Evaluator
	model  *model.Model
	models []model.Model
	user   domain.User
}

func (s scope) eval(cond any, record map[string]any, depth int) bool {
	if depth > maxDepth {
		return false
	}
	c, ok := asMap(cond)
	if !ok {
		return false
	}
	for k, v := range c {
		if !s.evalKey(k, v, record, depth) {
			return false
		}
	}
	return true
}

func (s scope) evalKey(k string, v any, record map[string]any, depth int) bool {
	switch k {
	case "$and":
		arr, _ := asArray(v)
		for _, sub := range arr {
			if !s.eval(sub, record, depth+1) {
				return false
			}
		}
		return true
	case "$or":
		arr, _ := asArray(v)
		for _, sub := range arr {
			if s.eval(sub, record, depth+1) {
				return true
			}
		}
		return false
	case "$nor":
		arr, _ := asArray(v)
		for _, sub := range arr {
			if s.eval(sub, record, depth+1) {
				return false
			}
		}
		return true
	case "$not":
		if arr, ok := asArray(v); ok && len(arr) == 1 {
			v = arr[0]
		}
		return !s.eval(v, record, depth+1)
	case "$find":
		return s.evalFind(v, record, depth)
	case "$exists":
		return s.evalExists(v, record)
	}

	if comparisonOps[k] {
		if pair, ok := asArray(v); ok && len(pair) == 2 {
			if ref, isRef := pair[0].(string); isRef && strings.HasPrefix(ref, "$") {
				name := strings.TrimPrefix(ref, "$")
				actual, _ := lookup(record, name)
				return s.fieldOp(name, k, pair[1], actual)
			}
		}
	}
	if strings.HasPrefix(k, "$") {
		s.e.logger.Warn("unknown condition operator",
			zap.String("model", s.model.Name()), zap.String("op", k))
		return true
	}

	actual, _ := lookup(record, k)
	ops, isOps := operatorObject(v)
	if !isOps {
		return s.fieldOp(k, "$eq", v, actual)
	}
	for op, operand := range ops {
		if op == "$exists" {
			if present(actual) != toBool(operand) {
				return false
			}
			continue
		}
		if !comparisonOps[op] && op != "$not" {
			s.e.logger.Warn("unknown condition operator",
				zap.String("model", s.model.Name()), zap.String("field", k), zap.String("op", op))
			continue
		}
		if op == "$not" {
			if s.evalKey(k, operand, record, depth+1) {
				return false
			}
			continue
		}
		if !s.fieldOp(k, op, operand, actual) {
			return false
		}
	}
	return true
}

// operatorObject reports whether v is {$op: operand, ...} rather than a bare value.
func operatorObject(v any) (map[string]any, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func present(v any) bool {
	return v != nil
}

func (s scope) evalExists(v any, record map[string]any) bool {
	want := true
	name, ok := v.(string)
	if !ok {
		pair, isArr := asArray(v)
		if !isArr || len(pair) == 0 {
			return false
		}
		name, _ = pair[0].(string)
		if len(pair) > 1 {
			want = toBool(pair[1])
		}
	}
	name = strings.TrimPrefix(name, "$")
	actual, _ := lookup(record, name)
	return present(actual) == want
}

func (s scope) evalFind(v any, record map[string]any, depth int) bool {
	body, ok := asMap(v)
	if !ok {
		return false
	}
	path, _ := body["path"].(string)
	path = strings.TrimPrefix(path, "$")
	raw, _ := lookup(record, path)

	items, isArr := asArray(raw)
	if !isArr {
		if raw == nil {
			return false
		}
		items = []any{raw}
	}

	sub := s
	if f, ok := s.model.Field(path); ok && f.IsRelation() {
		for i := range s.models {
			if s.models[i].Name() == f.RelationTo {
				sub.model = &s.models[i]
				break
			}
		}
	}
	cond := rewriteThis(body["filter"])
	for _, item := range items {
		rec, isMap := asMap(item)
		if !isMap {
			rec = map[string]any{}
		}
		rec = withThis(rec, item)
		if sub.eval(cond, rec, depth+1) {
			return true
		}
	}
	return false
}

const thisKey = "_this"

func withThis(rec map[string]any, item any) map[string]any {
	out := make(map[string]any, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	out[thisKey] = item
	return out
}

// rewriteThis turns "$$this.x" references and keys into element-relative paths.
func rewriteThis(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[rewriteKey(k)] = rewriteThis(e)
		}
		return out
	}
	if arr, ok := asArray(v); ok {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = rewriteThis(e)
		}
		return out
	}
	if s, ok := v.(string); ok {
		return rewriteRef(s)
	}
	return v
}

func rewriteKey(k string) string {
	switch {
	case strings.HasPrefix(k, "$$this."):
		return strings.TrimPrefix(k, "$$this.")
	case k == "$$this":
		return thisKey
	}
	return rewriteRef(k)
}

func rewriteRef(s string) string {
	switch {
	case strings.HasPrefix(s, "$$this."):
		return "$" + strings.TrimPrefix(s, "$$this.")
	case s == "$$this":
		return "$" + thisKey
	case strings.HasPrefix(s, "this."):
		return strings.TrimPrefix(s, "this.")
	}
	return s
}

func (s scope) fieldOp(name, op string, operand, actual any) bool {
	k := inferKind(actual)
	if actual == nil {
		k = inferKind(operand)
	}
	if f, ok := s.model.Field(name); ok {
		k = kindOf(f.Type)
		if f.Type == field.Relation || f.Type == field.Array {
			k = kindString
		}
	}
	if operand == UserPlaceholder {
		operand = s.user.ID
	}
	if op == "$in" || op == "$nin" {
		if str, isStr := operand.(string); isStr {
			operand = splitCSV(str)
		}
	}
	return compareOp(op, k, actual, operand)
}

// compareOp applies op to actual and operand in domain k.
// Array actuals match when any element matches, except for $ne and $nin.
func compareOp(op string, k kind, actual, operand any) bool {
	if items, ok := asArray(actual); ok {
		switch op {
		case "$ne", "$nin":
			for _, it := range items {
				if !compareScalar(op, k, it, operand) {
					return false
				}
			}
			return true
		}
		for _, it := range items {
			if compareScalar(op, k, it, operand) {
				return true
			}
		}
		return false
	}
	return compareScalar(op, k, actual, operand)
}

func compareScalar(op string, k kind, actual, operand any) bool {
	switch op {
	case "$in", "$nin":
		list, ok := asArray(operand)
		if !ok {
			return false
		}
		found := false
		for _, o := range list {
			if eq(k, actual, o) {
				found = true
				break
			}
		}
		return found == (op == "$in")
	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return false
		}
		re, ok := SafeRegex(pattern)
		if !ok || actual == nil {
			return false
		}
		return re.MatchString(toString(actual))
	case "$eq":
		return eq(k, actual, operand)
	case "$ne":
		return !eq(k, actual, operand)
	}

	a, okA := normalize(k, actual)
	b, okB := normalize(k, operand)
	if !okA || !okB || a.isNil || b.isNil {
		return false
	}
	c, ok := a.compare(b)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

func eq(k kind, actual, operand any) bool {
	a, okA := normalize(k, actual)
	b, okB := normalize(k, operand)
	if !okA || !okB {
		return false
	}
	c, ok := a.compare(b)
	return ok && c == 0
}

// SafeRegex compiles a user pattern, rejecting oversized ones.
// RE2 semantics keep matching linear in the input.
func SafeRegex(pattern string) (*regexp.Regexp, bool) {
	if len(pattern) > MaxPatternLength {
		return nil, false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}
