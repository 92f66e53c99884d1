// Package metadyn provides an online hill-deposition bias engine for
// enhanced-sampling molecular simulation (metadynamics).
//
// At a fixed pace the engine deposits Gaussian kernels ("hills") centered on
// the current value of a low-dimensional collective-variable vector; the
// running sum of deposited kernels forms a bias potential whose negative
// gradient is fed back into the host simulation as a force, and whose
// accumulated shape approximates the negative free-energy surface over the
// collective variables.
//
// # Architecture
//
// The engine is a library driven one step at a time by its host: each step
// the host supplies the current CV point and receives back the bias value,
// the generalized forces, and whether a hill was deposited. Everything else
// is internal machinery behind that call:
//
//   - Two interchangeable backings for the accumulated bias: an explicit
//     kernel list summed on every evaluation, or a discretized grid the
//     kernels are folded into permanently (dense or sparse, nearest-node or
//     spline-interpolated lookups).
//   - Well-tempered height rescaling, so hills shrink as the local bias
//     accumulates and the bias converges instead of growing without bound.
//   - Adaptive anisotropic widths derived from recent trajectory statistics
//     (geometric spread or diffusion), carried as full covariance matrices.
//   - A persistent, append-only hill log that makes runs restartable and
//     lets independent walkers share their hills through a common directory
//     with no locking and no barriers.
//   - An all-reduce abstraction so grid folds and kernel sums can run
//     domain-decomposed across cooperating processes.
//
// # Quick Start
//
// Deposit hills along a one-dimensional trajectory:
//
//	import (
//	    "github.com/mdbias/metadyn/pkg/bias"
//	    "github.com/mdbias/metadyn/pkg/config"
//	    "github.com/mdbias/metadyn/pkg/cv"
//	)
//
//	cfg := config.New("my-run")
//	cfg.Sigma = []float64{0.2}
//	cfg.Height = 0.3
//	cfg.Pace = 500
//
//	space := cv.Space{cv.NewValue("d1")}
//	engine, err := bias.New(cfg, space)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	for step := int64(0); step <= steps; step++ {
//	    res, err := engine.Step(step, float64(step)*dt, point)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // feed res.Forces back into the integrator
//	}
//
// # Key Packages
//
//	pkg/bias     - The engine: deposition scheduling, bias evaluation, restart
//	pkg/kernel   - Gaussian kernels and their guarded evaluation
//	pkg/grid     - Dense/sparse discretized bias field with spline lookups
//	pkg/hills    - Append-only hill log, restart replay, multi-walker cursors
//	pkg/adaptive - Flexible-hill width estimators
//	pkg/comm     - Process-group sum reduction for decomposed runs
//	pkg/cv       - Collective-variable metadata and periodic differences
//	pkg/config   - Unified configuration with validation
//	pkg/errors   - Structured error handling
//	pkg/logger   - Structured logging
//	pkg/metrics  - Prometheus instrumentation
//
// # Hill Log
//
// Every deposited kernel is appended as one self-describing text line:
//
//	#! FIELDS time d1 multivariate sigma_d1 height biasf
//	     0.500000000    1.000000000 false    0.200000000    0.300000000    1.000000000
//
// Logs are strictly append-only with a single writer. Restarting replays the
// log through the normal fold path; in multi-walker runs each walker polls
// its peers' logs and incorporates newly completed records, tolerating peers
// that start late, restart, or die.
//
// # Command Line
//
// cmd/metadyn drives an overdamped Langevin walker on a double-well model
// potential through the engine end to end:
//
//	metadyn run --config run.yaml
//	metadyn run --config run.yaml --restart
package metadyn
