package workflow

import (
	"fmt"

	"github.com/expr-lang/expr"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// whenEnv is the evaluation environment for transition when expressions.
type whenEnv struct {
	State string `expr:"state"`
	Step  int    `expr:"step"`
	Node  string `expr:"node"`
}

// compileWhens compiles every transition's when expression. A when that
// does not compile, or does not produce a boolean, fails the load.
func compileWhens(wf *Workflow) error {
	for i := range wf.Transitions {
		t := &wf.Transitions[i]
		if t.When == "" {
			continue
		}
		program, err := expr.Compile(t.When, expr.Env(whenEnv{}), expr.AsBool())
		if err != nil {
			return &pkgerrors.ValidationError{
				Field:   fmt.Sprintf("transitions[%d].when", i),
				Message: fmt.Sprintf("invalid expression: %v", err),
			}
		}
		t.whenProgram = program
	}
	return nil
}

// evalWhen reports whether the transition's when expression holds. A
// transition without one always passes.
func evalWhen(t *Transition, env whenEnv) (bool, error) {
	if t.whenProgram == nil {
		return true, nil
	}
	out, err := expr.Run(t.whenProgram, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
