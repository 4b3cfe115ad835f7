package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// ConditionOperator is one recognized rule operator.
type ConditionOperator string

const (
	OpEquals              ConditionOperator = "equals"
	OpNotEquals           ConditionOperator = "not_equals"
	OpContains            ConditionOperator = "contains"
	OpNotContains         ConditionOperator = "not_contains"
	OpGreaterThan         ConditionOperator = "greater_than"
	OpLessThan            ConditionOperator = "less_than"
	OpGreaterThanOrEquals ConditionOperator = "greater_than_or_equals"
	OpLessThanOrEquals    ConditionOperator = "less_than_or_equals"
	OpIsEmpty             ConditionOperator = "is_empty"
	OpIsNotEmpty          ConditionOperator = "is_not_empty"
	OpRegex               ConditionOperator = "regex"
)

// conditionRule is one entry of a condition node's rule list.
type conditionRule struct {
	InputReference string
	Operator       ConditionOperator
	CompareValue   interface{}
	Joiner         string // "and" | "or"; ignored on the first rule
}

// Condition evaluates an ordered rule list, left to right with uniform
// (no-precedence) "and"/"or" joiners, and nominates the "true"/"false"
// output handle. Grounded on smilemakc/mbflow's ConditionEvaluator for the
// compiled-and-cached regex path and the "unresolved reference degrades to
// false" convention; the structured per-operator comparisons themselves are
// hand-rolled rather than compiled expressions, since they map directly
// onto Go comparison primitives.
type Condition struct {
	mu      sync.Mutex
	regexps map[string]*vm.Program
}

// NewCondition returns a ready-to-use condition executor with its regex
// compile cache initialized.
func NewCondition() *Condition {
	return &Condition{regexps: make(map[string]*vm.Program)}
}

func (c *Condition) Validate(node workflow.Node) error {
	rules, err := parseConditionRules(node)
	if err != nil {
		return &NodeConfigError{NodeID: node.ID, Message: err.Error()}
	}
	if len(rules) == 0 {
		return &NodeConfigError{NodeID: node.ID, Message: "condition node requires at least one rule"}
	}
	return nil
}

func (c *Condition) Execute(_ context.Context, node workflow.Node, ec *exec.Context, _ Services) (Result, error) {
	rules, err := parseConditionRules(node)
	if err != nil {
		return Result{}, &NodeConfigError{NodeID: node.ID, Message: err.Error()}
	}

	var result bool
	reasons := make([]string, 0, len(rules))
	for i, rule := range rules {
		ruleResult, reason := c.evaluateRule(ec, rule)
		reasons = append(reasons, reason)
		if i == 0 {
			result = ruleResult
			continue
		}
		if strings.EqualFold(rule.Joiner, "or") {
			result = result || ruleResult
		} else {
			result = result && ruleResult
		}
	}

	handle := "false"
	if result {
		handle = "true"
	}
	return Result{
		Output: map[string]interface{}{"condition": result, "reasons": reasons},
		Handle: handle,
	}, nil
}

func (c *Condition) evaluateRule(ec *exec.Context, rule conditionRule) (bool, string) {
	value, ok := ec.ResolveReference(strings.Trim(rule.InputReference, "{} "))
	if !ok && rule.Operator != OpIsEmpty && rule.Operator != OpIsNotEmpty {
		return false, fmt.Sprintf("%s %s %v: unresolved reference, treated as false", rule.InputReference, rule.Operator, rule.CompareValue)
	}

	var result bool
	switch rule.Operator {
	case OpEquals:
		result = fmt.Sprint(value) == fmt.Sprint(rule.CompareValue)
	case OpNotEquals:
		result = fmt.Sprint(value) != fmt.Sprint(rule.CompareValue)
	case OpContains:
		result = strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.CompareValue))
	case OpNotContains:
		result = !strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.CompareValue))
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEquals, OpLessThanOrEquals:
		a, aok := toFloat(value)
		b, bok := toFloat(rule.CompareValue)
		if !aok || !bok {
			result = false
		} else {
			switch rule.Operator {
			case OpGreaterThan:
				result = a > b
			case OpLessThan:
				result = a < b
			case OpGreaterThanOrEquals:
				result = a >= b
			case OpLessThanOrEquals:
				result = a <= b
			}
		}
	case OpIsEmpty:
		result = !ok || isEmptyValue(value)
	case OpIsNotEmpty:
		result = ok && !isEmptyValue(value)
	case OpRegex:
		pattern := fmt.Sprint(rule.CompareValue)
		matched, err := c.matchRegex(fmt.Sprint(value), pattern)
		if err != nil {
			return false, fmt.Sprintf("%s regex %q: invalid pattern: %v", rule.InputReference, pattern, err)
		}
		result = matched
	default:
		result = false
	}

	return result, fmt.Sprintf("%s %s %v => %v", rule.InputReference, rule.Operator, rule.CompareValue, result)
}

// matchRegex evaluates value against pattern using a compiled-and-cached
// expr-lang program ("value matches pattern"), avoiding recompilation for
// repeated evaluations of the same rule across a workflow run.
func (c *Condition) matchRegex(value, pattern string) (bool, error) {
	c.mu.Lock()
	program, cached := c.regexps[pattern]
	c.mu.Unlock()

	if !cached {
		p, err := expr.Compile(`value matches pattern`, expr.Env(map[string]interface{}{}), expr.AsBool())
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		c.regexps[pattern] = p
		c.mu.Unlock()
		program = p
	}

	out, err := expr.Run(program, map[string]interface{}{"value": value, "pattern": pattern})
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func parseConditionRules(node workflow.Node) ([]conditionRule, error) {
	raw, ok := node.Config["rules"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("condition node config.rules must be a list")
	}
	rules := make([]conditionRule, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("rule %d is not an object", i)
		}
		ref, _ := m["inputReference"].(string)
		op, _ := m["operator"].(string)
		if ref == "" || op == "" {
			return nil, fmt.Errorf("rule %d requires inputReference and operator", i)
		}
		joiner, _ := m["joiner"].(string)
		rules = append(rules, conditionRule{
			InputReference: ref,
			Operator:       ConditionOperator(op),
			CompareValue:   m["compareValue"],
			Joiner:         joiner,
		})
	}
	return rules, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}
