// Package program defines the canonical linear / mixed-integer program
// exchanged between the Mean-CVaR formulator and solver backends. Programs are
// plain structured records so they can be logged, snapshotted and replayed.
package program

import (
	"fmt"
	"math"
	"time"
)

// Sense is the optimization direction of the objective.
type Sense string

const (
	Minimize Sense = "minimize"
	Maximize Sense = "maximize"
)

// VarType distinguishes continuous from binary decision variables.
type VarType string

const (
	Continuous VarType = "continuous"
	Binary     VarType = "binary"
)

// Op is the relation of a linear constraint row.
type Op string

const (
	LE Op = "<="
	GE Op = ">="
	EQ Op = "=="
)

// Variable is a single decision variable with bounds. Unbounded sides are
// expressed as ±Inf.
type Variable struct {
	Name  string  `json:"name" msgpack:"name"`
	Type  VarType `json:"type" msgpack:"type"`
	Lower float64 `json:"lower" msgpack:"lower"`
	Upper float64 `json:"upper" msgpack:"upper"`
}

// Constraint is one dense linear row: Coeffs · x  Op  RHS.
type Constraint struct {
	Name   string    `json:"name" msgpack:"name"`
	Coeffs []float64 `json:"coeffs" msgpack:"coeffs"`
	Op     Op        `json:"op" msgpack:"op"`
	RHS    float64   `json:"rhs" msgpack:"rhs"`
}

// Program is a canonical linear or mixed-integer program.
type Program struct {
	Name        string       `json:"name" msgpack:"name"`
	Sense       Sense        `json:"sense" msgpack:"sense"`
	Objective   []float64    `json:"objective" msgpack:"objective"`
	Variables   []Variable   `json:"variables" msgpack:"variables"`
	Constraints []Constraint `json:"constraints" msgpack:"constraints"`
}

// NumVariables returns the number of decision variables.
func (p *Program) NumVariables() int { return len(p.Variables) }

// IsMixedInteger reports whether the program carries any binary variables and
// therefore needs the (slower) branch-and-bound solver path.
func (p *Program) IsMixedInteger() bool {
	for _, v := range p.Variables {
		if v.Type == Binary {
			return true
		}
	}
	return false
}

// Validate checks internal consistency: objective and every constraint row
// must match the variable count, and bounds must be ordered.
func (p *Program) Validate() error {
	n := len(p.Variables)
	if n == 0 {
		return fmt.Errorf("program %q has no variables", p.Name)
	}
	if len(p.Objective) != n {
		return fmt.Errorf("program %q objective has %d coefficients, want %d", p.Name, len(p.Objective), n)
	}
	if p.Sense != Minimize && p.Sense != Maximize {
		return fmt.Errorf("program %q has unknown sense %q", p.Name, p.Sense)
	}
	for i, v := range p.Variables {
		if v.Lower > v.Upper {
			return fmt.Errorf("variable %q (index %d) has lower %v > upper %v", v.Name, i, v.Lower, v.Upper)
		}
		if v.Type == Binary {
			if v.Lower < 0 || v.Upper > 1 {
				return fmt.Errorf("binary variable %q has bounds [%v, %v] outside [0, 1]", v.Name, v.Lower, v.Upper)
			}
		}
	}
	for i, c := range p.Constraints {
		if len(c.Coeffs) != n {
			return fmt.Errorf("constraint %q (row %d) has %d coefficients, want %d", c.Name, i, len(c.Coeffs), n)
		}
		if c.Op != LE && c.Op != GE && c.Op != EQ {
			return fmt.Errorf("constraint %q (row %d) has unknown op %q", c.Name, i, c.Op)
		}
		if math.IsNaN(c.RHS) {
			return fmt.Errorf("constraint %q (row %d) has NaN right-hand side", c.Name, i)
		}
	}
	return nil
}

// Status is the solver-reported outcome of a solve call. Non-OPTIMAL statuses
// are normal results, not errors.
type Status string

const (
	StatusOptimal    Status = "OPTIMAL"
	StatusInfeasible Status = "INFEASIBLE"
	StatusUnbounded  Status = "UNBOUNDED"
	StatusTimeout    Status = "TIMEOUT"
	StatusError      Status = "ERROR"
)

// Solution is the solver's answer to a canonical program.
type Solution struct {
	Status    Status        `json:"status" msgpack:"status"`
	Objective float64       `json:"objective" msgpack:"objective"`
	Values    []float64     `json:"values,omitempty" msgpack:"values,omitempty"`
	SolveTime time.Duration `json:"solve_time" msgpack:"solve_time"`
	Message   string        `json:"message,omitempty" msgpack:"message,omitempty"`
}
