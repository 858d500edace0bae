package query

import (
	"fmt"
	"sync"

	humanize "github.com/dustin/go-humanize"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/value"
)

// DefaultIrBudget is the step budget a const evaluator is given absent an
// explicit override (spec §9: "a const evaluator budget, by default
// 1,000,000 IR steps, configurable by the embedder" — see DESIGN.md's Open
// Question decision on configurability).
const DefaultIrBudget = 1_000_000

// ConstEvaluator walks a restricted const-expression subset of the syntax
// tree (literals, arrays/tuples of consts, and references to other
// already-evaluated consts; object expressions are not evaluated and are
// rejected as invalid in const position) directly to a value.ConstValue, charging one
// step per node visited against a budget reported with go-humanize when
// exceeded (spec §9's IR budget, carried from the teacher's general
// "resource accounting" idiom of reporting sizes through a single
// humanize-formatted figure rather than a bare integer).
type ConstEvaluator struct {
	mu     sync.Mutex
	budget int
	steps  int
	consts map[string]value.ConstValue
	bag    *diag.Bag
}

func NewConstEvaluator(bag *diag.Bag, budget int) *ConstEvaluator {
	if budget <= 0 {
		budget = DefaultIrBudget
	}
	return &ConstEvaluator{budget: budget, consts: make(map[string]value.ConstValue), bag: bag}
}

// Define records an already-evaluated const so later expressions can
// reference it by name. Safe to call concurrently: the indexer's deferred
// const-eval tasks for independent consts may run within the same round.
func (e *ConstEvaluator) Define(name string, v value.ConstValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consts[name] = v
}

// Eval const-evaluates n, charging the step budget. Only the subset of
// expression kinds valid in const position are handled (spec §3.7); any
// other expression kind is a plain error, not a recoverable diagnostic,
// since const position is fully static.
func (e *ConstEvaluator) Eval(n *syntax.Node) (value.ConstValue, error) {
	if err := e.charge(n); err != nil {
		return value.ConstValue{}, err
	}
	switch n.Kind {
	case syntax.KLitInt:
		var iv int64
		fmt.Sscanf(n.Children[0].Text(), "%d", &iv)
		return value.ConstInteger(iv), nil
	case syntax.KLitFloat:
		var fv float64
		fmt.Sscanf(n.Children[0].Text(), "%g", &fv)
		return value.ConstFloat(fv), nil
	case syntax.KLitString:
		return value.ConstString(unquoteConstString(n.Children[0].Text())), nil
	case syntax.KLitChar, syntax.KLitByte:
		return value.ConstString(n.Children[0].Text()), nil
	case syntax.KPath:
		name := n.Children[0].Text()
		e.mu.Lock()
		v, ok := e.consts[name]
		e.mu.Unlock()
		if ok {
			return v, nil
		}
		return value.ConstValue{}, fmt.Errorf("const %q referenced before it was evaluated", name)
	case syntax.KArrayExpr:
		items, err := e.evalChildren(n)
		if err != nil {
			return value.ConstValue{}, err
		}
		return value.ConstVec(items), nil
	case syntax.KTupleExpr:
		items, err := e.evalChildren(n)
		if err != nil {
			return value.ConstValue{}, err
		}
		return value.ConstTuple(items), nil
	default:
		return value.ConstValue{}, fmt.Errorf("expression kind %s is not valid in const position", n.Kind)
	}
}

func (e *ConstEvaluator) evalChildren(n *syntax.Node) ([]value.ConstValue, error) {
	var out []value.ConstValue
	for _, c := range n.Children {
		if c.Tok != nil {
			continue // punctuation/comma leaves
		}
		v, err := e.Eval(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *ConstEvaluator) charge(n *syntax.Node) error {
	e.mu.Lock()
	e.steps++
	steps, budget := e.steps, e.budget
	e.mu.Unlock()
	if steps > budget {
		if e.bag != nil {
			e.bag.Errorf(n.Span, diag.KindIrBudgetExceeded,
				"const evaluation exceeded its step budget of %s instructions",
				humanize.Comma(int64(budget)))
		}
		return fmt.Errorf("const evaluation exceeded its step budget of %s instructions", humanize.Comma(int64(budget)))
	}
	return nil
}

// Steps reports the number of steps charged so far, for diagnostics/tests.
func (e *ConstEvaluator) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

func unquoteConstString(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}
