// Package expreval evaluates filter expressions with the expr language.
package expreval

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// ErrNotBoolean is returned when an expression yields a non-boolean value.
var ErrNotBoolean = errors.New("expression did not evaluate to a boolean")

// maxCachedPrograms bounds the compile cache; it is cleared when full.
const maxCachedPrograms = 1024

// compiled is a cache entry. Compile failures are cached too so that a bad
// expression is not recompiled for every record.
type compiled struct {
	program *vm.Program
	err     error
}

// Evaluator implements ports.Evaluator. Expressions see the record bindings
// and two helpers:
//
//	hasError(side, key, value)   side[key] contains value
//	lacksError(side, key, value) side[key] exists and does not contain value
//
// where side is one of the segment maps, e.g. segment.sevcatsBySystem.
// The language has no access to I/O or process state.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]compiled
	sf    singleflight.Group
}

// New creates an evaluator with an empty cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]compiled)}
}

// Evaluate implements ports.Evaluator.
func (e *Evaluator) Evaluate(code string, bindings map[string]any) (bool, error) {
	program, err := e.compile(code)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, bindings)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, out)
	}
	return b, nil
}

// Compile checks that code is a valid expression over the record bindings.
func (e *Evaluator) Compile(code string) error {
	_, err := e.compile(code)
	return err
}

func (e *Evaluator) compile(code string) (*vm.Program, error) {
	e.mu.RLock()
	c, ok := e.cache[code]
	e.mu.RUnlock()
	if ok {
		return c.program, c.err
	}

	v, _, _ := e.sf.Do(code, func() (any, error) {
		program, err := expr.Compile(code, options()...)
		c := compiled{program: program, err: err}
		e.mu.Lock()
		if len(e.cache) >= maxCachedPrograms {
			clear(e.cache)
		}
		e.cache[code] = c
		e.mu.Unlock()
		return c, nil
	})
	c = v.(compiled)
	return c.program, c.err
}

// options registers the segment helpers. No environment type is declared
// because segment ids bind as integers or strings depending on the record.
func options() []expr.Option {
	return []expr.Option{
		expr.Function("hasError", segmentPredicate("hasError", domain.HasError)),
		expr.Function("lacksError", segmentPredicate("lacksError", domain.LacksError)),
	}
}

func segmentPredicate(name string, fn func(map[string][]string, string, string) bool) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 3 {
			return nil, fmt.Errorf("%s: want 3 arguments, got %d", name, len(params))
		}
		side, ok := params[0].(map[string][]string)
		if !ok {
			return nil, fmt.Errorf("%s: first argument must be a segment map, got %T", name, params[0])
		}
		key, ok1 := params[1].(string)
		value, ok2 := params[2].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: key and value must be strings", name)
		}
		return fn(side, key, value), nil
	}
}

var _ ports.Evaluator = (*Evaluator)(nil)
