package condition

import "fmt"

// Bound variable names.
const (
	VarSource = "source"
	VarTarget = "target"
)

// methodSpec describes an allowed method: its arity and whether its single
// argument must be a lambda.
type methodSpec struct {
	arity  int
	lambda bool
}

// Methods lists every method an expression may call. Anything else is
// rejected before evaluation.
var Methods = map[string]methodSpec{
	"includes":    {arity: 1},
	"some":        {arity: 1, lambda: true},
	"every":       {arity: 1, lambda: true},
	"toLowerCase": {arity: 0},
	"toUpperCase": {arity: 0},
	"trim":        {arity: 0},
	"startsWith":  {arity: 1},
	"endsWith":    {arity: 1},
}

// Check verifies that expr only reads source, target and in-scope lambda
// parameters, calls only allowed methods with the right arity, and uses
// lambdas only where a method expects one.
func Check(expr Expr) error {
	scope := map[string]bool{VarSource: true, VarTarget: true}
	return check(expr, scope)
}

func check(expr Expr, scope map[string]bool) error {
	switch e := expr.(type) {
	case *NumberLit, *StringLit, *BoolLit, *NullLit:
		return nil
	case *Ident:
		if !scope[e.Name] {
			return fmt.Errorf("unknown identifier %q at position %d: only %s and %s are bound", e.Name, e.Pos, VarSource, VarTarget)
		}
		return nil
	case *ArrayLit:
		for _, el := range e.Elems {
			if err := check(el, scope); err != nil {
				return err
			}
		}
		return nil
	case *MemberExpr:
		return check(e.Object, scope)
	case *IndexExpr:
		if err := check(e.Object, scope); err != nil {
			return err
		}
		return check(e.Index, scope)
	case *UnaryExpr:
		return check(e.Operand, scope)
	case *BinaryExpr:
		if err := check(e.Left, scope); err != nil {
			return err
		}
		return check(e.Right, scope)
	case *CallExpr:
		spec, ok := Methods[e.Method]
		if !ok {
			return fmt.Errorf("method %s() at position %d is not allowed", e.Method, e.Pos)
		}
		if len(e.Args) != spec.arity {
			return fmt.Errorf("method %s() at position %d takes %d argument(s), got %d", e.Method, e.Pos, spec.arity, len(e.Args))
		}
		if err := check(e.Object, scope); err != nil {
			return err
		}
		for _, arg := range e.Args {
			lam, isLambda := arg.(*LambdaExpr)
			if isLambda != spec.lambda {
				if spec.lambda {
					return fmt.Errorf("method %s() at position %d expects a lambda", e.Method, e.Pos)
				}
				return fmt.Errorf("lambda at position %d is only allowed as a some/every argument", arg.Position())
			}
			if isLambda {
				if err := checkLambda(lam, scope); err != nil {
					return err
				}
				continue
			}
			if err := check(arg, scope); err != nil {
				return err
			}
		}
		return nil
	case *LambdaExpr:
		return fmt.Errorf("lambda at position %d is only allowed as a some/every argument", e.Pos)
	default:
		return fmt.Errorf("unsupported expression %T", expr)
	}
}

func checkLambda(lam *LambdaExpr, scope map[string]bool) error {
	if scope[lam.Param] {
		return fmt.Errorf("lambda parameter %q at position %d shadows a bound name", lam.Param, lam.Pos)
	}
	inner := make(map[string]bool, len(scope)+1)
	for k := range scope {
		inner[k] = true
	}
	inner[lam.Param] = true
	return check(lam.Body, inner)
}
