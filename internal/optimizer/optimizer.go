// Package optimizer implements derivative-free parameter search for the
// hybrid training loop. The objective round-trips through the quantum
// backend, so evaluation count per improvement is the cost that matters:
// SPSA needs two evaluations per iteration regardless of dimension, and
// Nelder-Mead (gonum) is the simplex alternative for small parameter counts.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// Objective maps a parameter vector to a scalar cost. Implementations are
// stateless with respect to the optimizer; errors abort the search.
type Objective func(params []float64) (float64, error)

// Method selects the search algorithm.
type Method string

const (
	MethodSPSA       Method = "spsa"
	MethodNelderMead Method = "nelder_mead"
)

// ConvergenceInfo reports how a search ended. Reaching the iteration cap
// without convergence is not an error; Converged is simply false.
type ConvergenceInfo struct {
	Iterations    int     `json:"iterations"`
	Converged     bool    `json:"converged"`
	BestObjective float64 `json:"best_objective"`
}

// Options controls the search budget and early stopping.
type Options struct {
	Method   Method
	MaxIter  int
	Epsilon  float64 // minimum improvement counted as progress
	Patience int     // consecutive below-epsilon iterations before stopping
	Seed     int64
}

// Defaults applied by New when fields are zero.
const (
	defaultMaxIter  = 80
	defaultEpsilon  = 1e-4
	defaultPatience = 10
)

// Optimizer runs a strictly sequential search trajectory. A single Optimizer
// must not be driven concurrently for the same model state.
type Optimizer struct {
	opts Options
	log  zerolog.Logger
}

// New creates an optimizer with defaults filled in.
func New(opts Options, log zerolog.Logger) *Optimizer {
	if opts.Method == "" {
		opts.Method = MethodSPSA
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = defaultMaxIter
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = defaultEpsilon
	}
	if opts.Patience <= 0 {
		opts.Patience = defaultPatience
	}
	return &Optimizer{
		opts: opts,
		log:  log.With().Str("component", "optimizer").Str("method", string(opts.Method)).Logger(),
	}
}

// Minimize searches for parameters minimizing the objective, starting from
// initial. Returns the best parameters seen, the best objective value, and
// convergence information. The best objective is monotonically non-worsening
// across iterations.
func (o *Optimizer) Minimize(ctx context.Context, obj Objective, initial []float64) ([]float64, float64, ConvergenceInfo, error) {
	if len(initial) == 0 {
		return nil, 0, ConvergenceInfo{}, errors.New("empty initial parameter vector")
	}

	switch o.opts.Method {
	case MethodNelderMead:
		return o.minimizeNelderMead(ctx, obj, initial)
	default:
		return o.minimizeSPSA(ctx, obj, initial)
	}
}

// SPSA gain-sequence constants (Spall's recommended exponents).
const (
	spsaAlpha = 0.602
	spsaGamma = 0.101
	spsaA     = 0.2
	spsaC     = 0.15
)

// minimizeSPSA runs simultaneous perturbation stochastic approximation.
// Each iteration evaluates the objective at two symmetric perturbations and
// steps along the estimated gradient. The best evaluated point is tracked
// explicitly so the reported trajectory never worsens.
func (o *Optimizer) minimizeSPSA(ctx context.Context, obj Objective, initial []float64) ([]float64, float64, ConvergenceInfo, error) {
	n := len(initial)
	rng := rand.New(rand.NewSource(o.opts.Seed))

	theta := make([]float64, n)
	copy(theta, initial)

	best := make([]float64, n)
	copy(best, initial)
	bestF, err := obj(initial)
	if err != nil {
		return nil, 0, ConvergenceInfo{}, fmt.Errorf("initial objective evaluation failed: %w", err)
	}

	stall := 0
	stability := float64(o.opts.MaxIter) / 10

	for k := 0; k < o.opts.MaxIter; k++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, ConvergenceInfo{}, err
		}

		ak := spsaA / math.Pow(float64(k+1)+stability, spsaAlpha)
		ck := spsaC / math.Pow(float64(k+1), spsaGamma)

		delta := make([]float64, n)
		for i := range delta {
			if rng.Intn(2) == 0 {
				delta[i] = 1
			} else {
				delta[i] = -1
			}
		}

		plus := make([]float64, n)
		minus := make([]float64, n)
		for i := range theta {
			plus[i] = theta[i] + ck*delta[i]
			minus[i] = theta[i] - ck*delta[i]
		}

		fPlus, err := obj(plus)
		if err != nil {
			return nil, 0, ConvergenceInfo{}, fmt.Errorf("objective evaluation failed at iteration %d: %w", k, err)
		}
		fMinus, err := obj(minus)
		if err != nil {
			return nil, 0, ConvergenceInfo{}, fmt.Errorf("objective evaluation failed at iteration %d: %w", k, err)
		}

		prevBest := bestF
		if fPlus < bestF {
			bestF = fPlus
			copy(best, plus)
		}
		if fMinus < bestF {
			bestF = fMinus
			copy(best, minus)
		}

		grad := (fPlus - fMinus) / (2 * ck)
		for i := range theta {
			theta[i] -= ak * grad * delta[i]
		}

		if prevBest-bestF < o.opts.Epsilon {
			stall++
		} else {
			stall = 0
		}
		if stall >= o.opts.Patience {
			o.log.Debug().
				Int("iterations", k+1).
				Float64("best", bestF).
				Msg("Converged")
			return best, bestF, ConvergenceInfo{Iterations: k + 1, Converged: true, BestObjective: bestF}, nil
		}
	}

	o.log.Debug().
		Int("iterations", o.opts.MaxIter).
		Float64("best", bestF).
		Msg("Iteration cap reached without convergence")
	return best, bestF, ConvergenceInfo{Iterations: o.opts.MaxIter, Converged: false, BestObjective: bestF}, nil
}

// minimizeNelderMead delegates to gonum's simplex implementation. Objective
// errors are captured out-of-band since gonum objective functions cannot
// return them.
func (o *Optimizer) minimizeNelderMead(ctx context.Context, obj Objective, initial []float64) ([]float64, float64, ConvergenceInfo, error) {
	var evalErr error

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil || ctx.Err() != nil {
				return math.Inf(1)
			}
			f, err := obj(x)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return f
		},
	}

	settings := &optimize.Settings{
		MajorIterations: o.opts.MaxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   o.opts.Epsilon,
			Iterations: o.opts.Patience,
		},
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if evalErr != nil {
		return nil, 0, ConvergenceInfo{}, fmt.Errorf("objective evaluation failed: %w", evalErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, ConvergenceInfo{}, ctxErr
	}
	if err != nil && result == nil {
		return nil, 0, ConvergenceInfo{}, fmt.Errorf("nelder-mead failed: %w", err)
	}

	info := ConvergenceInfo{
		Iterations:    result.Stats.MajorIterations,
		Converged:     result.Status == optimize.FunctionConvergence || result.Status == optimize.GradientThreshold,
		BestObjective: result.F,
	}
	return result.X, result.F, info, nil
}
