/*
Copyright © 2024 the seaduck authors.
This file is part of seaduck.

seaduck is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

seaduck is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with seaduck.  If not, see <http://www.gnu.org/licenses/>.
*/

package sdutil

import (
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

// outputFunctions are the functions available in derived variable
// expressions.
var outputFunctions = map[string]govaluate.ExpressionFunction{
	"exp": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("seaduck: got %d arguments for function 'exp', but needs 1", len(arg))
		}
		return math.Exp(arg[0].(float64)), nil
	},
	"sqrt": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("seaduck: got %d arguments for function 'sqrt', but needs 1", len(arg))
		}
		return math.Sqrt(arg[0].(float64)), nil
	},
	"abs": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("seaduck: got %d arguments for function 'abs', but needs 1", len(arg))
		}
		return math.Abs(arg[0].(float64)), nil
	},
	"hypot": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 2 {
			return nil, fmt.Errorf("seaduck: got %d arguments for function 'hypot', but needs 2", len(arg))
		}
		return math.Hypot(arg[0].(float64), arg[1].(float64)), nil
	},
}

// derived calculates output variables from expressions of input
// variables and other output variables.
type derived struct {
	names  []string // in evaluation order
	exprs  map[string]*govaluate.EvaluableExpression
	inputs []string
}

// newDerived parses the expressions in vars, which maps output names to
// expressions. Expressions may refer to other output names as long as
// the references are not circular.
func newDerived(vars map[string]string) (*derived, error) {
	d := &derived{exprs: make(map[string]*govaluate.EvaluableExpression, len(vars))}
	deps := make(map[string][]string, len(vars))
	for name, v := range vars {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(v, outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("seaduck: derived variable %s: %v", name, err)
		}
		d.exprs[name] = e
		deps[name] = removeDuplicates(e.Vars())
	}
	inputs := make(map[string]bool)
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("seaduck: derived variable %s refers to itself", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if _, ok := d.exprs[dep]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			} else {
				inputs[dep] = true
			}
		}
		state[name] = done
		d.names = append(d.names, name)
		return nil
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	for v := range inputs {
		d.inputs = append(d.inputs, v)
	}
	sort.Strings(d.inputs)
	return d, nil
}

// Inputs returns the names of the variables that are not themselves
// derived but are needed to calculate the derived variables.
func (d *derived) Inputs() []string { return d.inputs }

// Names returns the derived variable names in alphabetical order.
func (d *derived) Names() []string {
	o := append([]string(nil), d.names...)
	sort.Strings(o)
	return o
}

// eval calculates the derived variables from the input values in vals
// and adds them to vals. A derived variable is NaN if any of its
// inputs is NaN or missing.
func (d *derived) eval(vals map[string]float64) error {
	for _, name := range d.names {
		e := d.exprs[name]
		params := make(map[string]interface{}, len(e.Vars()))
		missing := false
		for _, v := range e.Vars() {
			x, ok := vals[v]
			if !ok || math.IsNaN(x) {
				missing = true
				break
			}
			params[v] = x
		}
		if missing {
			vals[name] = math.NaN()
			continue
		}
		r, err := e.Evaluate(params)
		if err != nil {
			return fmt.Errorf("seaduck: evaluating derived variable %s: %v", name, err)
		}
		x, ok := r.(float64)
		if !ok {
			return fmt.Errorf("seaduck: derived variable %s is %T, not a number", name, r)
		}
		vals[name] = x
	}
	return nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
