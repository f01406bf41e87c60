package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// maxSteps bounds the work of one evaluation, counting visited nodes.
const maxSteps = 100_000

// Program is a compiled, checked condition. It is immutable and safe for
// concurrent use.
type Program struct {
	source string
	root   Expr
}

// Compile parses and checks src. Errors carry the ErrConditionEvaluation
// kind with code INVALID_CONDITION.
func Compile(src string) (*Program, error) {
	if len(src) > MaxLength {
		return nil, types.ConditionErrorf(types.CodeInvalidCondition, "condition longer than %d bytes", MaxLength)
	}
	root, err := NewParser(src).Parse()
	if err != nil {
		return nil, types.ConditionErrorf(types.CodeInvalidCondition, "parse condition %q: %s", src, err)
	}
	if err := Check(root); err != nil {
		return nil, types.ConditionErrorf(types.CodeInvalidCondition, "check condition %q: %s", src, err)
	}
	return &Program{source: src, root: root}, nil
}

// String returns the source text.
func (p *Program) String() string { return p.source }

// Eval runs the program with source and target bound. The result must be a
// boolean; anything else, and any runtime type error, is reported with code
// CONDITION_RUNTIME_ERROR.
func (p *Program) Eval(source, target any) (bool, error) {
	ev := &evaluator{vars: map[string]any{VarSource: normalize(source), VarTarget: normalize(target)}}
	v, err := ev.eval(p.root)
	if err != nil {
		return false, types.ConditionErrorf(types.CodeConditionRuntime, "evaluate %q: %s", p.source, err)
	}
	b, ok := v.(bool)
	if !ok {
		return false, types.ConditionErrorf(types.CodeConditionRuntime, "evaluate %q: result is %s, not boolean", p.source, typeName(v))
	}
	return b, nil
}

// Evaluate compiles and runs src in one step.
func Evaluate(src string, source, target any) (bool, error) {
	p, err := Compile(src)
	if err != nil {
		return false, err
	}
	return p.Eval(source, target)
}

type evaluator struct {
	vars  map[string]any
	steps int
}

func (ev *evaluator) eval(expr Expr) (any, error) {
	ev.steps++
	if ev.steps > maxSteps {
		return nil, fmt.Errorf("evaluation exceeded %d steps", maxSteps)
	}

	switch e := expr.(type) {
	case *NumberLit:
		return e.Value, nil
	case *StringLit:
		return e.Value, nil
	case *BoolLit:
		return e.Value, nil
	case *NullLit:
		return nil, nil
	case *ArrayLit:
		out := make([]any, 0, len(e.Elems))
		for _, el := range e.Elems {
			v, err := ev.eval(el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *Ident:
		v, ok := ev.vars[e.Name]
		if !ok {
			return nil, fmt.Errorf("unbound identifier %q", e.Name)
		}
		return v, nil
	case *MemberExpr:
		obj, err := ev.eval(e.Object)
		if err != nil {
			return nil, err
		}
		return member(obj, e.Property, e.Pos)
	case *IndexExpr:
		return ev.evalIndex(e)
	case *CallExpr:
		return ev.evalCall(e)
	case *UnaryExpr:
		return ev.evalUnary(e)
	case *BinaryExpr:
		return ev.evalBinary(e)
	default:
		return nil, fmt.Errorf("cannot evaluate %T", expr)
	}
}

func member(obj any, prop string, pos int) (any, error) {
	switch o := obj.(type) {
	case map[string]any:
		return o[prop], nil
	case string:
		if prop == "length" {
			return float64(utf8.RuneCountInString(o)), nil
		}
	case []any:
		if prop == "length" {
			return float64(len(o)), nil
		}
	case nil:
		return nil, fmt.Errorf("cannot read %q of null at position %d", prop, pos)
	}
	return nil, fmt.Errorf("%s has no member %q (position %d)", typeName(obj), prop, pos)
}

func (ev *evaluator) evalIndex(e *IndexExpr) (any, error) {
	obj, err := ev.eval(e.Object)
	if err != nil {
		return nil, err
	}
	idx, err := ev.eval(e.Index)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case []any:
		n, ok := idx.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("array index must be an integer at position %d", e.Pos)
		}
		if n < 0 || n >= float64(len(o)) {
			return nil, nil
		}
		return o[int(n)], nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string at position %d", e.Pos)
		}
		return o[k], nil
	default:
		return nil, fmt.Errorf("cannot index %s at position %d", typeName(obj), e.Pos)
	}
}

func (ev *evaluator) evalCall(e *CallExpr) (any, error) {
	obj, err := ev.eval(e.Object)
	if err != nil {
		return nil, err
	}

	switch e.Method {
	case "some", "every":
		arr, ok := obj.([]any)
		if !ok {
			return nil, fmt.Errorf("%s() needs an array, got %s (position %d)", e.Method, typeName(obj), e.Pos)
		}
		lam := e.Args[0].(*LambdaExpr)
		want := e.Method == "some"
		for _, item := range arr {
			b, err := ev.apply(lam, item)
			if err != nil {
				return nil, err
			}
			if b == want {
				return want, nil
			}
		}
		return !want, nil
	}

	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		if args[i], err = ev.eval(a); err != nil {
			return nil, err
		}
	}

	if e.Method == "includes" {
		switch o := obj.(type) {
		case []any:
			for _, item := range o {
				if equal(item, args[0]) {
					return true, nil
				}
			}
			return false, nil
		case string:
			needle, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("includes() on a string needs a string argument (position %d)", e.Pos)
			}
			return strings.Contains(strings.ToLower(o), strings.ToLower(needle)), nil
		default:
			return nil, fmt.Errorf("includes() needs an array or string, got %s (position %d)", typeName(obj), e.Pos)
		}
	}

	s, ok := obj.(string)
	if !ok {
		return nil, fmt.Errorf("%s() needs a string, got %s (position %d)", e.Method, typeName(obj), e.Pos)
	}
	switch e.Method {
	case "toLowerCase":
		return strings.ToLower(s), nil
	case "toUpperCase":
		return strings.ToUpper(s), nil
	case "trim":
		return strings.TrimSpace(s), nil
	case "startsWith", "endsWith":
		arg, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s() needs a string argument (position %d)", e.Method, e.Pos)
		}
		if e.Method == "startsWith" {
			return strings.HasPrefix(s, arg), nil
		}
		return strings.HasSuffix(s, arg), nil
	}
	return nil, fmt.Errorf("method %s() is not allowed", e.Method)
}

// apply binds the lambda parameter to item and evaluates the body, which
// must produce a boolean.
func (ev *evaluator) apply(lam *LambdaExpr, item any) (bool, error) {
	prev, had := ev.vars[lam.Param]
	ev.vars[lam.Param] = item
	defer func() {
		if had {
			ev.vars[lam.Param] = prev
		} else {
			delete(ev.vars, lam.Param)
		}
	}()

	v, err := ev.eval(lam.Body)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("lambda at position %d returned %s, not boolean", lam.Pos, typeName(v))
	}
	return b, nil
}

func (ev *evaluator) evalUnary(e *UnaryExpr) (any, error) {
	v, err := ev.eval(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case TokenNot:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("! needs a boolean, got %s (position %d)", typeName(v), e.Pos)
		}
		return !b, nil
	case TokenMinus:
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("unary - needs a number, got %s (position %d)", typeName(v), e.Pos)
		}
		return -n, nil
	}
	return nil, fmt.Errorf("unknown unary operator %s", e.Op)
}

func (ev *evaluator) evalBinary(e *BinaryExpr) (any, error) {
	if e.Op == TokenAnd || e.Op == TokenOr {
		return ev.evalLogical(e)
	}

	left, err := ev.eval(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := ev.eval(e.Right)
	if err != nil {
		return nil, err
	}

	switch {
	case e.Op == TokenEq || e.Op == TokenStrictEq:
		return equal(left, right), nil
	case e.Op == TokenNeq || e.Op == TokenStrictNeq:
		return !equal(left, right), nil
	case e.Op.IsRelational():
		return compare(e.Op, left, right, e.Pos)
	default:
		return arithmetic(e.Op, left, right, e.Pos)
	}
}

func (ev *evaluator) evalLogical(e *BinaryExpr) (any, error) {
	left, err := ev.eval(e.Left)
	if err != nil {
		return nil, err
	}
	lb, ok := left.(bool)
	if !ok {
		return nil, fmt.Errorf("%s needs boolean operands, got %s (position %d)", e.Op, typeName(left), e.Pos)
	}
	if (e.Op == TokenAnd && !lb) || (e.Op == TokenOr && lb) {
		return lb, nil
	}
	right, err := ev.eval(e.Right)
	if err != nil {
		return nil, err
	}
	rb, ok := right.(bool)
	if !ok {
		return nil, fmt.Errorf("%s needs boolean operands, got %s (position %d)", e.Op, typeName(right), e.Pos)
	}
	return rb, nil
}

// equal compares two values. Strings compare case-insensitively, a number
// equals a string that parses to the same number, and arrays compare
// element-wise.
func equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case string:
			n, ok := numericString(y)
			return ok && n == x
		}
		return false
	case string:
		switch y := b.(type) {
		case string:
			return strings.EqualFold(x, y)
		case float64:
			n, ok := numericString(x)
			return ok && n == y
		}
		return false
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compare orders two numbers, or two strings ignoring case, or a number
// and a numeric string.
func compare(op TokenType, a, b any, pos int) (bool, error) {
	var c int
	x, xNum := asNumber(a)
	y, yNum := asNumber(b)
	as, aStr := a.(string)
	bs, bStr := b.(string)
	switch {
	case xNum && yNum:
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case aStr && bStr:
		c = compareFold(as, bs)
	default:
		return false, fmt.Errorf("cannot compare %s %s %s (position %d)", typeName(a), op, typeName(b), pos)
	}
	switch op {
	case TokenLt:
		return c < 0, nil
	case TokenGt:
		return c > 0, nil
	case TokenLte:
		return c <= 0, nil
	default:
		return c >= 0, nil
	}
}

// compareFold orders strings ignoring case, agreeing with equal.
func compareFold(a, b string) int {
	if strings.EqualFold(a, b) {
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// asNumber accepts numbers, and numeric strings when compared against
// numbers. Two numeric strings compare as numbers too.
func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		return numericString(x)
	}
	return 0, false
}

func arithmetic(op TokenType, a, b any, pos int) (any, error) {
	if op == TokenPlus {
		as, aStr := a.(string)
		bs, bStr := b.(string)
		if aStr && bStr {
			return as + bs, nil
		}
	}
	x, xOK := a.(float64)
	y, yOK := b.(float64)
	if !xOK || !yOK {
		return nil, fmt.Errorf("%s needs numbers, got %s and %s (position %d)", op, typeName(a), typeName(b), pos)
	}
	switch op {
	case TokenPlus:
		return x + y, nil
	case TokenMinus:
		return x - y, nil
	case TokenStar:
		return x * y, nil
	case TokenSlash:
		if y == 0 {
			return nil, fmt.Errorf("division by zero at position %d", pos)
		}
		return x / y, nil
	case TokenPercent:
		if y == 0 {
			return nil, fmt.Errorf("modulo by zero at position %d", pos)
		}
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func numericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// normalize converts bound values to the evaluator's value domain: float64,
// string, bool, nil, []any and map[string]any.
func normalize(v any) any {
	if n, ok := types.ToFloat(v); ok {
		return n
	}
	switch x := v.(type) {
	case nil, bool, string:
		return x
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
