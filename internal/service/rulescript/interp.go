package rulescript

import (
	"context"
	"fmt"
	"math"
	"strings"

	"SigWatch/internal/domain/models"
)

// interp evaluates a parsed script against a read-only context mapping.
// Scripts may read dotted paths out of the mapping but only write flat
// variables of their own. No loops, no user-defined functions, no I/O
// beyond the log capability.
type interp struct {
	ctx     context.Context
	env     map[string]interface{}
	vars    map[string]interface{}
	logBuf  strings.Builder
	opsLeft int
}

const opsPerDeadlineCheck = 64

func newInterp(ctx context.Context, env map[string]interface{}, maxOps int) *interp {
	return &interp{
		ctx:     ctx,
		env:     env,
		vars:    make(map[string]interface{}),
		opsLeft: maxOps,
	}
}

func (in *interp) run(stmts []node) error {
	for _, s := range stmts {
		if err := in.exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) step() error {
	in.opsLeft--
	if in.opsLeft <= 0 {
		return fmt.Errorf("%w: operation budget exhausted", models.ErrScriptTimeout)
	}
	if in.opsLeft%opsPerDeadlineCheck == 0 {
		if err := in.ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrScriptTimeout, err)
		}
	}
	return nil
}

func (in *interp) exec(s node) error {
	if err := in.step(); err != nil {
		return err
	}
	switch st := s.(type) {
	case *assignStmt:
		v, err := in.eval(st.expr)
		if err != nil {
			return err
		}
		in.vars[st.name] = v
		return nil
	case *ifStmt:
		cond, err := in.eval(st.cond)
		if err != nil {
			return err
		}
		b, ok := cond.(bool)
		if !ok {
			return fmt.Errorf("line %d: if condition must be boolean", st.line)
		}
		if b {
			return in.run(st.then)
		}
		return in.run(st.alt)
	case *callStmt:
		_, err := in.eval(st.call)
		return err
	}
	return fmt.Errorf("unknown statement")
}

func (in *interp) eval(e node) (interface{}, error) {
	if err := in.step(); err != nil {
		return nil, err
	}
	switch ex := e.(type) {
	case *numberLit:
		return ex.val, nil
	case *stringLit:
		return ex.val, nil
	case *boolLit:
		return ex.val, nil
	case *varRef:
		return in.lookup(ex)
	case *unaryExpr:
		return in.evalUnary(ex)
	case *binaryExpr:
		return in.evalBinary(ex)
	case *callExpr:
		return in.call(ex)
	}
	return nil, fmt.Errorf("unknown expression")
}

func (in *interp) lookup(ref *varRef) (interface{}, error) {
	if len(ref.path) == 1 {
		if v, ok := in.vars[ref.path[0]]; ok {
			return v, nil
		}
	}
	var cur interface{} = in.env
	for i, part := range ref.path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("line %d: %s is not a mapping", ref.line, strings.Join(ref.path[:i], "."))
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown variable %s", ref.line, strings.Join(ref.path, "."))
		}
	}
	return normalize(cur), nil
}

// normalize widens context values so scripts only ever see float64,
// string, bool, or nested mappings.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func (in *interp) evalUnary(ex *unaryExpr) (interface{}, error) {
	v, err := in.eval(ex.x)
	if err != nil {
		return nil, err
	}
	switch ex.op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("! requires a boolean")
		}
		return !b, nil
	case "-":
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("unary - requires a number")
		}
		return -n, nil
	}
	return nil, fmt.Errorf("unknown unary operator %s", ex.op)
}

func (in *interp) evalBinary(ex *binaryExpr) (interface{}, error) {
	// short-circuit boolean operators
	if ex.op == "&&" || ex.op == "||" {
		l, err := in.eval(ex.l)
		if err != nil {
			return nil, err
		}
		lb, ok := l.(bool)
		if !ok {
			return nil, fmt.Errorf("line %d: %s requires booleans", ex.line, ex.op)
		}
		if ex.op == "&&" && !lb {
			return false, nil
		}
		if ex.op == "||" && lb {
			return true, nil
		}
		r, err := in.eval(ex.r)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, fmt.Errorf("line %d: %s requires booleans", ex.line, ex.op)
		}
		return rb, nil
	}

	l, err := in.eval(ex.l)
	if err != nil {
		return nil, err
	}
	r, err := in.eval(ex.r)
	if err != nil {
		return nil, err
	}

	switch ex.op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	}

	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("line %d: mixed string/number operands", ex.line)
		}
		switch ex.op {
		case "+":
			return ls + rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
		return nil, fmt.Errorf("line %d: operator %s not defined for strings", ex.line, ex.op)
	}

	ln, lok := l.(float64)
	rn, rok := r.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("line %d: operator %s requires numbers", ex.line, ex.op)
	}
	switch ex.op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, fmt.Errorf("line %d: division by zero", ex.line)
		}
		return ln / rn, nil
	case "%":
		if rn == 0 {
			return nil, fmt.Errorf("line %d: division by zero", ex.line)
		}
		return math.Mod(ln, rn), nil
	case "<":
		return ln < rn, nil
	case "<=":
		return ln <= rn, nil
	case ">":
		return ln > rn, nil
	case ">=":
		return ln >= rn, nil
	}
	return nil, fmt.Errorf("line %d: unknown operator %s", ex.line, ex.op)
}

// call dispatches the reviewed capability set. Anything outside this
// switch is unavailable to scripts.
func (in *interp) call(ex *callExpr) (interface{}, error) {
	args := make([]interface{}, 0, len(ex.args))
	for _, a := range ex.args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch ex.name {
	case "log":
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, formatValue(a))
		}
		in.logBuf.WriteString(strings.Join(parts, " "))
		in.logBuf.WriteByte('\n')
		return true, nil
	case "abs":
		n, err := oneNumber(ex.name, args)
		if err != nil {
			return nil, err
		}
		return math.Abs(n), nil
	case "round":
		n, err := oneNumber(ex.name, args)
		if err != nil {
			return nil, err
		}
		return math.Round(n), nil
	case "min":
		return foldNumbers(ex.name, args, math.Min)
	case "max":
		return foldNumbers(ex.name, args, math.Max)
	case "contains":
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: contains takes 2 arguments", ex.line)
		}
		s, sok := args[0].(string)
		sub, bok := args[1].(string)
		if !sok || !bok {
			return nil, fmt.Errorf("line %d: contains requires strings", ex.line)
		}
		return strings.Contains(s, sub), nil
	case "str":
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: str takes 1 argument", ex.line)
		}
		return formatValue(args[0]), nil
	}
	return nil, fmt.Errorf("line %d: unknown function %s", ex.line, ex.name)
}

func oneNumber(name string, args []interface{}) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s takes 1 argument", name)
	}
	n, ok := args[0].(float64)
	if !ok {
		return 0, fmt.Errorf("%s requires a number", name)
	}
	return n, nil
}

func foldNumbers(name string, args []interface{}, f func(float64, float64) float64) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s takes at least 2 arguments", name)
	}
	acc, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("%s requires numbers", name)
	}
	for _, a := range args[1:] {
		n, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("%s requires numbers", name)
		}
		acc = f(acc, n)
	}
	return acc, nil
}

func formatValue(v interface{}) string {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case string:
		return n
	case bool:
		if n {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
