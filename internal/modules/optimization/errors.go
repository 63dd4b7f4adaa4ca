package optimization

import "fmt"

// InvalidScenarioMatrixError signals a malformed scenario matrix handed to the
// formulator: zero scenarios, inconsistent shape, or probabilities that do not
// sum to one.
type InvalidScenarioMatrixError struct {
	Reason string
}

func (e *InvalidScenarioMatrixError) Error() string {
	return fmt.Sprintf("invalid scenario matrix: %s", e.Reason)
}

// InfeasibleConstraintSetError signals a constraint set that is provably
// infeasible before any solver dispatch, e.g. a leverage bound below the
// budget.
type InfeasibleConstraintSetError struct {
	Reason string
}

func (e *InfeasibleConstraintSetError) Error() string {
	return fmt.Sprintf("infeasible constraint set: %s", e.Reason)
}
