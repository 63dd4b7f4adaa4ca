package scenarios

import "fmt"

// InsufficientDataError signals that the returns history is shorter than the
// minimum the chosen generation method requires.
type InsufficientDataError struct {
	Method Method
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient history for method %q: have %d periods, need at least %d", e.Method, e.Have, e.Need)
}

// DegenerateDistributionError signals that a density-based method cannot fit a
// usable distribution, e.g. because the sample covariance is singular.
type DegenerateDistributionError struct {
	Reason string
}

func (e *DegenerateDistributionError) Error() string {
	return fmt.Sprintf("degenerate return distribution: %s", e.Reason)
}
