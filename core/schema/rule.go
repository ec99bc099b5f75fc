package schema

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Context exposes the current model to dynamic rules.
type Context interface {
	// Values returns a snapshot of the model's attribute values.
	Values() map[string]any
}

// Rule is one declared rule value.
// Static rules carry Value. Dynamic rules carry Eval and are resolved
// against the current model on every use; the resolved value is never cached.
type Rule struct {
	Value any
	Eval  func(ctx Context) any

	// Expr is the source of an expression rule, kept for display.
	Expr string
}

// Static returns a rule with a fixed value.
func Static(v any) Rule {
	return Rule{Value: v}
}

// Dynamic returns a rule resolved by fn against the current model.
func Dynamic(fn func(ctx Context) any) Rule {
	return Rule{Eval: fn}
}

// IsDynamic reports whether the rule must be resolved per validation.
func (r Rule) IsDynamic() bool {
	return r.Eval != nil
}

// Resolve returns the rule value for the given model.
// A nil context resolves dynamic rules against an empty model.
func (r Rule) Resolve(ctx Context) any {
	if r.Eval == nil {
		return r.Value
	}
	if ctx == nil {
		ctx = emptyContext{}
	}
	return r.Eval(ctx)
}

// MarshalJSON renders static rules as their value and expression rules as
// {"expr": source}. Function rules render as {"dynamic": true}.
func (r Rule) MarshalJSON() ([]byte, error) {
	switch {
	case r.Expr != "":
		return json.Marshal(map[string]string{"expr": r.Expr})
	case r.Eval != nil:
		return json.Marshal(map[string]bool{"dynamic": true})
	default:
		return json.Marshal(r.Value)
	}
}

// CompileExpr compiles an expression into a dynamic rule.
// Evaluation errors resolve to nil, which rule evaluators treat as unset.
func CompileExpr(source string) (Rule, error) {
	program, err := expr.Compile(source,
		expr.Env(map[string]any{"model": map[string]any{}}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return Rule{}, fmt.Errorf("compile rule expression %q: %w", source, err)
	}

	return Rule{
		Expr: source,
		Eval: func(ctx Context) any {
			return runExpr(program, ctx)
		},
	}, nil
}

func runExpr(program *vm.Program, ctx Context) any {
	values := ctx.Values()
	if values == nil {
		values = map[string]any{}
	}
	out, err := expr.Run(program, map[string]any{"model": values})
	if err != nil {
		return nil
	}
	return out
}

type emptyContext struct{}

func (emptyContext) Values() map[string]any { return map[string]any{} }
