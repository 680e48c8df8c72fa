package expressions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator compiles and caches JMESPath expressions
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Evaluate evaluates a JMESPath expression against data
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateNumber evaluates an expression and coerces the result to a float. Numeric
// strings are accepted since the ERP returns most scalars as text. ok is false when
// the expression matches nothing usable.
func (e *Evaluator) EvaluateNumber(expression string, data any) (value float64, ok bool, err error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return 0, false, err
	}

	switch v := result.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, parseErr := v.Float64()
		if parseErr != nil {
			return 0, false, nil
		}
		return f, true, nil
	case string:
		f, parseErr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if parseErr != nil {
			return 0, false, nil
		}
		return f, true, nil
	default:
		return 0, false, nil
	}
}

// FirstPositive returns the first expression result greater than zero.
func (e *Evaluator) FirstPositive(expressions []string, data any) (float64, bool) {
	for _, expression := range expressions {
		value, ok, err := e.EvaluateNumber(expression, data)
		if err != nil || !ok || value <= 0 {
			continue
		}
		return value, true
	}
	return 0, false
}

// Validate checks if an expression is valid
func (e *Evaluator) Validate(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()

	return compiled, nil
}
