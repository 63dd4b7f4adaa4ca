// Package scenarios turns returns history into the finite scenario
// distributions the Mean-CVaR program consumes. Generation is seedable so
// concurrent runs stay reproducible.
package scenarios

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/aristath/tailrisk/internal/modules/universe"
)

// Method selects the scenario generation approach.
type Method string

const (
	// MethodHistorical resamples observed return rows with replacement.
	MethodHistorical Method = "historical"
	// MethodGaussian samples a multivariate normal fitted to the history.
	MethodGaussian Method = "gaussian"
	// MethodKDE draws from a Gaussian-kernel smoothed bootstrap of the
	// history (multivariate KDE with Silverman bandwidth).
	MethodKDE Method = "kde"
)

// minimum history rows per method. Density-based methods need enough rows for
// a non-singular covariance estimate.
const historicalMinPeriods = 2

// Generator produces ScenarioMatrix values from returns history.
type Generator struct {
	log zerolog.Logger
}

// NewGenerator creates a new scenario generator.
func NewGenerator(log zerolog.Logger) *Generator {
	return &Generator{
		log: log.With().Str("component", "scenarios").Logger(),
	}
}

// Generate produces nScenarios equally-weighted scenarios from hist using the
// given method and seed. The output always has exactly nScenarios rows and a
// column for every asset in hist.
func (g *Generator) Generate(hist *universe.History, nScenarios int, method Method, seed uint64) (*ScenarioMatrix, error) {
	if hist == nil {
		return nil, fmt.Errorf("nil history")
	}
	if err := hist.Validate(); err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	if nScenarios <= 0 {
		return nil, fmt.Errorf("scenario count must be positive, got %d", nScenarios)
	}

	var matrix *ScenarioMatrix
	var err error
	switch method {
	case MethodHistorical:
		matrix, err = g.historical(hist, nScenarios, seed)
	case MethodGaussian:
		matrix, err = g.gaussian(hist, nScenarios, seed)
	case MethodKDE:
		matrix, err = g.kde(hist, nScenarios, seed)
	default:
		return nil, fmt.Errorf("unknown scenario method %q", method)
	}
	if err != nil {
		return nil, err
	}

	g.log.Debug().
		Str("method", string(method)).
		Int("scenarios", nScenarios).
		Int("assets", hist.NumAssets()).
		Uint64("seed", seed).
		Msg("Generated scenario matrix")

	return matrix, nil
}

func (g *Generator) historical(hist *universe.History, nScenarios int, seed uint64) (*ScenarioMatrix, error) {
	if hist.NumPeriods() < historicalMinPeriods {
		return nil, &InsufficientDataError{Method: MethodHistorical, Have: hist.NumPeriods(), Need: historicalMinPeriods}
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	rows := make([][]float64, nScenarios)
	for s := range rows {
		src := hist.Returns[rng.IntN(hist.NumPeriods())]
		row := make([]float64, len(src))
		copy(row, src)
		rows[s] = row
	}

	return &ScenarioMatrix{
		Assets:  hist.Symbols(),
		Returns: rows,
		Probs:   UniformProbs(nScenarios),
	}, nil
}

func (g *Generator) gaussian(hist *universe.History, nScenarios int, seed uint64) (*ScenarioMatrix, error) {
	normal, err := g.fitNormal(hist, MethodGaussian, 1.0)
	if err != nil {
		return nil, err
	}

	src := rand.NewPCG(seed, seed)
	dist, ok := distmv.NewNormal(normal.mu, normal.sigma, src)
	if !ok {
		return nil, &DegenerateDistributionError{Reason: "covariance matrix is not positive definite"}
	}

	rows := make([][]float64, nScenarios)
	for s := range rows {
		rows[s] = dist.Rand(nil)
	}

	return &ScenarioMatrix{
		Assets:  hist.Symbols(),
		Returns: rows,
		Probs:   UniformProbs(nScenarios),
	}, nil
}

// kde draws a historical row uniformly, then perturbs it with multivariate
// Gaussian noise scaled by the Silverman bandwidth. The smoothed bootstrap
// keeps fat-tailed joint moves that a plain Gaussian fit washes out.
func (g *Generator) kde(hist *universe.History, nScenarios int, seed uint64) (*ScenarioMatrix, error) {
	d := float64(hist.NumAssets())
	n := float64(hist.NumPeriods())
	bandwidth := math.Pow(4.0/(d+2.0), 1.0/(d+4.0)) * math.Pow(n, -1.0/(d+4.0))

	normal, err := g.fitNormal(hist, MethodKDE, bandwidth*bandwidth)
	if err != nil {
		return nil, err
	}

	src := rand.NewPCG(seed, seed)
	zeros := make([]float64, hist.NumAssets())
	noise, ok := distmv.NewNormal(zeros, normal.sigma, src)
	if !ok {
		return nil, &DegenerateDistributionError{Reason: "kernel covariance matrix is not positive definite"}
	}

	rng := rand.New(rand.NewPCG(seed+1, seed+1))
	rows := make([][]float64, nScenarios)
	for s := range rows {
		base := hist.Returns[rng.IntN(hist.NumPeriods())]
		row := noise.Rand(nil)
		for i := range row {
			row[i] += base[i]
		}
		rows[s] = row
	}

	return &ScenarioMatrix{
		Assets:  hist.Symbols(),
		Returns: rows,
		Probs:   UniformProbs(nScenarios),
	}, nil
}

type fittedNormal struct {
	mu    []float64
	sigma *mat.SymDense
}

// fitNormal estimates the sample mean and covariance, scaled by scale, and
// rejects histories that are too short or carry a zero-variance asset.
func (g *Generator) fitNormal(hist *universe.History, method Method, scale float64) (*fittedNormal, error) {
	nAssets := hist.NumAssets()
	minPeriods := nAssets + 2
	if hist.NumPeriods() < minPeriods {
		return nil, &InsufficientDataError{Method: method, Have: hist.NumPeriods(), Need: minPeriods}
	}

	flat := make([]float64, 0, hist.NumPeriods()*nAssets)
	for _, row := range hist.Returns {
		flat = append(flat, row...)
	}
	data := mat.NewDense(hist.NumPeriods(), nAssets, flat)

	sigma := mat.NewSymDense(nAssets, nil)
	stat.CovarianceMatrix(sigma, data, nil)

	for i := 0; i < nAssets; i++ {
		if sigma.At(i, i) <= 0 {
			return nil, &DegenerateDistributionError{
				Reason: fmt.Sprintf("asset %s has zero return variance", hist.Assets[i].Symbol),
			}
		}
	}

	if scale != 1.0 {
		for i := 0; i < nAssets; i++ {
			for j := i; j < nAssets; j++ {
				sigma.SetSym(i, j, sigma.At(i, j)*scale)
			}
		}
	}

	mu := make([]float64, nAssets)
	for i := 0; i < nAssets; i++ {
		mu[i] = stat.Mean(mat.Col(nil, i, data), nil)
	}

	return &fittedNormal{mu: mu, sigma: sigma}, nil
}
