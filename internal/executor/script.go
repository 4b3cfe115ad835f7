package executor

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// Script runs a "javascript" node's scripted transform in an isolated goja
// VM per invocation. Its globals are the values named in inputMappings (or,
// when the config has no inputMappings, every active predecessor's output
// under its sanitized node name), plus `input` (the execution's input) and,
// when feedback is recorded for the node, `feedback`. It must return a
// JSON-representable value; it has no access to the surrounding Go process
// otherwise. goja has no built-in context support, so the timeout is
// enforced by a timer that calls vm.Interrupt, and a second goroutine
// interrupts the VM once ctx is done.
type Script struct{}

func (Script) Validate(node workflow.Node) error {
	code, _ := node.Config["code"].(string)
	if code == "" {
		return &NodeConfigError{NodeID: node.ID, Message: "javascript node requires non-empty config.code"}
	}
	return nil
}

func (Script) Execute(ctx context.Context, node workflow.Node, ec *exec.Context, _ Services) (Result, error) {
	code, _ := node.Config["code"].(string)
	timeout := scriptTimeout(node)

	inputs := map[string]interface{}{}
	if mappings, ok := node.Config["inputMappings"].([]interface{}); ok {
		for _, m := range mappings {
			name, ok := m.(string)
			if !ok {
				continue
			}
			if v, ok := ec.ResolveReference(name); ok {
				inputs[sanitizeIdentifier(name)] = v
			}
		}
	} else {
		for _, pred := range ec.ActivePredecessors(node.ID) {
			if out, ok := ec.Output(pred); ok {
				inputs[sanitizeIdentifier(ec.NodeName(pred))] = out
			}
		}
	}
	if fb, ok := ec.Feedback(node.ID); ok {
		inputs["feedback"] = fb
	}

	vm := goja.New()
	for k, v := range inputs {
		if err := vm.Set(k, v); err != nil {
			return Result{}, &ScriptError{NodeID: node.ID, Err: err}
		}
	}
	if err := vm.Set("input", ec.Input()); err != nil {
		return Result{}, &ScriptError{NodeID: node.ID, Err: err}
	}

	done := make(chan struct{})
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() { vm.Interrupt("timeout") })
		defer timer.Stop()
	}
	go func() {
		<-ctx.Done()
		vm.Interrupt("execution interrupted")
	}()

	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = vm.RunString(code)
	}()
	<-done

	if runErr != nil {
		if ctx.Err() != nil {
			return Result{}, &TimeoutError{NodeID: node.ID, Timeout: timeout.String()}
		}
		if ie, ok := runErr.(*goja.InterruptedError); ok {
			if ie.Value() == "timeout" {
				return Result{}, &TimeoutError{NodeID: node.ID, Timeout: timeout.String()}
			}
		}
		return Result{}, &ScriptError{NodeID: node.ID, Err: runErr}
	}

	return Result{Output: value.Export()}, nil
}

func scriptTimeout(node workflow.Node) time.Duration {
	switch v := node.Config["timeout"].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 30 * time.Second
}

func sanitizeIdentifier(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
