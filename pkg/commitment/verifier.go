package commitment

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Verifier is a deterministic predicate over an action trace. It never sees
// a successor's internal state.
type Verifier interface {
	ID() string
	Verify(trace []TraceEntry) (bool, error)
}

// CELVerifier evaluates a compiled CEL program against `trace`, a list of
// maps with keys type, key, seq, cycle, epoch and ops.
type CELVerifier struct {
	id   string
	expr string
	prg  cel.Program
}

// NewCELVerifier compiles expr; the expression must evaluate to bool.
func NewCELVerifier(id, expr string) (*CELVerifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("trace", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("verifier %s: env: %w", id, err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("verifier %s: compile: %w", id, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("verifier %s: expression yields %s, want bool", id, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("verifier %s: program: %w", id, err)
	}
	return &CELVerifier{id: id, expr: expr, prg: prg}, nil
}

// ID returns the verifier id.
func (v *CELVerifier) ID() string { return v.id }

// Verify implements Verifier.
func (v *CELVerifier) Verify(trace []TraceEntry) (bool, error) {
	list := make([]interface{}, 0, len(trace))
	for _, e := range trace {
		list = append(list, map[string]interface{}{
			"type":  e.Type,
			"key":   e.Key,
			"seq":   e.Seq,
			"cycle": e.Cycle,
			"epoch": e.Epoch,
			"ops":   int64(e.Ops),
		})
	}
	out, _, err := v.prg.Eval(map[string]interface{}{"trace": list})
	if err != nil {
		return false, fmt.Errorf("verifier %s: eval: %w", v.id, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("verifier %s: non-bool result %T", v.id, out.Value())
	}
	return b, nil
}
