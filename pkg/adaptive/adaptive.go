// Package adaptive derives anisotropic kernel widths from recent trajectory
// statistics instead of a fixed per-variable constant ("flexible hills").
//
// An Estimator is an external collaborator of the deposition scheduler: its
// state advances once per simulation step whether or not a hill is
// deposited, and the scheduler pulls the current estimate, as an
// upper-triangular inverse matrix, only at deposition time.
package adaptive

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
	"github.com/mdbias/metadyn/pkg/kernel"
)

// Scheme selects how widths are estimated.
type Scheme int

const (
	// None disables adaptive widths; the engine uses its fixed sigmas.
	None Scheme = iota
	// Geometry sizes the kernel from the geometric spread of recent CV
	// points; sigma is a single length in CV units.
	Geometry
	// Diffusion sizes the kernel from the CV displacement accumulated over
	// recent steps; sigma is a single time in units of steps.
	Diffusion
)

// ParseScheme maps the configuration keyword onto a Scheme. Unknown names
// are a configuration error.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return None, nil
	case "GEOM":
		return Geometry, nil
	case "DIFF":
		return Diffusion, nil
	default:
		return None, errors.Newf(errors.ErrorTypeConfig, "unknown adaptive scheme %q", s)
	}
}

// Estimator produces the current anisotropic width in the engine's working
// encoding: the upper-triangular flattening of the inverse width matrix.
type Estimator interface {
	// Advance feeds the current CV point into the running statistics. It
	// must be called exactly once per step; depositing marks steps on which
	// a hill is laid down so the estimator can restart its window.
	Advance(point []float64, depositing bool)
	// InverseMatrix returns the current estimate.
	InverseMatrix() ([]float64, error)
}

// New builds an estimator for the given scheme. Scheme None has no
// estimator and returns nil.
func New(scheme Scheme, space cv.Space, sigma float64) (Estimator, error) {
	if sigma <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "adaptive sigma must be positive")
	}
	switch scheme {
	case None:
		return nil, nil
	case Geometry:
		return &geometry{space: space, sigma: sigma, window: defaultGeometryWindow}, nil
	case Diffusion:
		steps := int(sigma + 0.5)
		if steps < 1 {
			steps = 1
		}
		return &diffusion{space: space, window: steps}, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unknown adaptive scheme")
	}
}

const defaultGeometryWindow = 100

// geometry keeps a sliding window of CV points and shapes the kernel like
// their covariance, rescaled so the dominant axis spans sigma.
type geometry struct {
	space  cv.Space
	sigma  float64
	window int
	pts    [][]float64
}

func (g *geometry) Advance(point []float64, depositing bool) {
	g.pts = append(g.pts, append([]float64(nil), point...))
	if len(g.pts) > g.window {
		g.pts = g.pts[1:]
	}
	if depositing {
		// fresh window for the next hill
		last := g.pts[len(g.pts)-1]
		g.pts = [][]float64{last}
	}
}

func (g *geometry) InverseMatrix() ([]float64, error) {
	d := g.space.Dim()
	sig := mat.NewSymDense(d, nil)
	if len(g.pts) < 2 {
		for i := 0; i < d; i++ {
			sig.SetSym(i, i, g.sigma*g.sigma)
		}
		return invertToUpper(sig)
	}

	ref := g.pts[len(g.pts)-1]
	delta := make([]float64, d)
	for _, p := range g.pts {
		g.space.Difference(ref, p, delta)
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				sig.SetSym(i, j, sig.At(i, j)+delta[i]*delta[j])
			}
		}
	}
	n := float64(len(g.pts))
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sig.SetSym(i, j, sig.At(i, j)/n)
		}
	}

	// rescale so the dominant principal axis spans sigma
	lmax, _, err := kernel.DominantEigenpair(sig)
	if err != nil || lmax <= 0 {
		for i := 0; i < d; i++ {
			sig.SetSym(i, i, sig.At(i, i)+g.sigma*g.sigma)
		}
		return invertToUpper(sig)
	}
	scale := g.sigma * g.sigma / lmax
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sig.SetSym(i, j, sig.At(i, j)*scale)
		}
	}
	regularize(sig, g.sigma)
	return invertToUpper(sig)
}

// diffusion accumulates step-to-step displacement outer products over a
// window of steps, so the kernel covers the space the system diffuses
// through in that time.
type diffusion struct {
	space  cv.Space
	window int
	prev   []float64
	steps  [][]float64 // per-step displacement outer products, upper-tri
}

func (e *diffusion) Advance(point []float64, depositing bool) {
	d := e.space.Dim()
	if e.prev != nil {
		delta := make([]float64, d)
		e.space.Difference(e.prev, point, delta)
		outer := make([]float64, d*(d+1)/2)
		k := 0
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				outer[k] = delta[i] * delta[j]
				k++
			}
		}
		e.steps = append(e.steps, outer)
		if len(e.steps) > e.window {
			e.steps = e.steps[1:]
		}
	}
	e.prev = append(e.prev[:0], point...)
	if depositing {
		e.steps = nil
	}
}

func (e *diffusion) InverseMatrix() ([]float64, error) {
	d := e.space.Dim()
	if len(e.steps) == 0 {
		return nil, errors.New(errors.ErrorTypeNumerical, "diffusion width requested before any displacement was observed")
	}
	sig := mat.NewSymDense(d, nil)
	for _, outer := range e.steps {
		k := 0
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				sig.SetSym(i, j, sig.At(i, j)+outer[k])
				k++
			}
		}
	}
	var trace float64
	for i := 0; i < d; i++ {
		trace += sig.At(i, i)
	}
	regularize(sig, math.Sqrt(trace/float64(d)))
	return invertToUpper(sig)
}

// regularize adds a small ridge so near-degenerate directions stay
// invertible without distorting the live ones.
func regularize(sig *mat.SymDense, scale float64) {
	ridge := 1e-8 * scale * scale
	if ridge <= 0 {
		ridge = 1e-12
	}
	d := sig.SymmetricDim()
	for i := 0; i < d; i++ {
		sig.SetSym(i, i, sig.At(i, i)+ridge)
	}
}

func invertToUpper(sig *mat.SymDense) ([]float64, error) {
	inv, err := kernel.InvertSym(sig)
	if err != nil {
		return nil, err
	}
	return kernel.UpperFromSym(inv), nil
}
