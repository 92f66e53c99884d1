// Package bias implements the online metadynamics engine: at a fixed pace
// it deposits Gaussian kernels centered on the current collective-variable
// point, and every step it returns the accumulated bias and its negative
// gradient as a generalized force.
//
// The accumulated bias lives either in an explicit kernel list, summed on
// every evaluation, or folded permanently into a discretized grid; exactly
// one backing is chosen at construction. A persistent hill log makes runs
// restartable and lets independent walkers share their kernels through a
// common directory.
package bias

import (
	"os"

	"go.uber.org/zap"

	"github.com/mdbias/metadyn/pkg/adaptive"
	"github.com/mdbias/metadyn/pkg/comm"
	"github.com/mdbias/metadyn/pkg/config"
	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
	"github.com/mdbias/metadyn/pkg/grid"
	"github.com/mdbias/metadyn/pkg/hills"
	"github.com/mdbias/metadyn/pkg/kernel"
	"github.com/mdbias/metadyn/pkg/metrics"
)

// replayChunk bounds how many records are replayed between progress logs.
const replayChunk = 1000

// Meta is one walker's bias engine.
type Meta struct {
	cfg   *config.Config
	space cv.Space
	eval  *kernel.Evaluator

	// exactly one of the two backings is active
	kernels []*kernel.Kernel
	field   grid.Grid

	writer    *hills.Writer
	peers     *hills.PeerSet
	estimator adaptive.Estimator
	group     comm.Communicator
	logger    *zap.Logger
	collector *metrics.Collector

	interval  *kernel.Interval
	wellTemp  bool
	firstStep bool

	scratch []float64
}

// Option customizes engine construction.
type Option func(*Meta)

// WithCommunicator runs grid folds and kernel sums domain-decomposed over
// the given process group.
func WithCommunicator(c comm.Communicator) Option {
	return func(m *Meta) { m.group = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Meta) { m.logger = l }
}

// WithEstimator injects an adaptive width estimator, replacing the one the
// configuration would build.
func WithEstimator(e adaptive.Estimator) Option {
	return func(m *Meta) { m.estimator = e }
}

// New validates the configuration, builds the chosen backing, opens the
// hill log and, on restart, replays every already-deposited kernel. All
// configuration errors are fatal here, before the first step.
func New(cfg *config.Config, space cv.Space, opts ...Option) (*Meta, error) {
	d := space.Dim()
	if err := cfg.Validate(d); err != nil {
		return nil, err
	}

	m := &Meta{
		cfg:       cfg,
		space:     space,
		group:     comm.Serial{},
		logger:    zap.NewNop(),
		firstStep: true,
		scratch:   make([]float64, d),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("bias", cfg.Name), zap.Int("walker", cfg.Walkers.ID))
	m.collector = metrics.NewCollector(cfg.Walkers.ID, cfg.Observability.EnableMetrics)
	m.wellTemp = cfg.WellTempered.Enabled()

	if cfg.Interval.Enabled {
		m.interval = &kernel.Interval{Lower: cfg.Interval.Lower, Upper: cfg.Interval.Upper}
	}
	m.eval = kernel.NewEvaluator(space, m.interval)

	if m.estimator == nil {
		scheme, err := adaptive.ParseScheme(cfg.Adaptive.Scheme)
		if err != nil {
			return nil, err
		}
		if scheme != adaptive.None {
			m.estimator, err = adaptive.New(scheme, space, cfg.Sigma[0])
			if err != nil {
				return nil, err
			}
		}
	}

	if cfg.Grid.Enabled() {
		// interval truncation is not smooth, so splines are forced off
		spline := !cfg.Grid.NoSpline && m.interval == nil
		var (
			g   grid.Grid
			err error
		)
		if cfg.Grid.Sparse {
			g, err = grid.NewSparse(space, cfg.Grid.Min, cfg.Grid.Max, cfg.Grid.Bins, spline)
		} else {
			g, err = grid.NewDense(space, cfg.Grid.Min, cfg.Grid.Max, cfg.Grid.Bins, spline)
		}
		if err != nil {
			return nil, err
		}
		m.field = g
	}

	ownPath := hills.Filename(cfg.Walkers.Dir, cfg.HillsFile, cfg.Walkers.N, cfg.Walkers.ID)
	if err := m.replayOwn(ownPath); err != nil {
		return nil, err
	}
	writer, err := hills.NewWriter(hills.WriterConfig{
		Path:    ownPath,
		Restart: cfg.Restart,
		Format:  cfg.Format,
		Clock:   cfg.Walkers.N > 1,
	}, space)
	if err != nil {
		return nil, err
	}
	m.writer = writer

	if cfg.Walkers.N > 1 {
		m.peers = hills.NewPeerSet(cfg.Walkers.Dir, cfg.HillsFile, cfg.Walkers.N, cfg.Walkers.ID, space, m.logger)
		if cfg.Restart {
			// bring in the peers' full history before the first step; the
			// cursors then resume incrementally from where replay stopped
			replayed := 0
			if err := m.peers.Poll(func(rec *hills.Record) error {
				replayed++
				return m.applyRecord(rec)
			}); err != nil {
				return nil, err
			}
			m.collector.Replayed(replayed)
		}
	}

	m.logger.Info("metadynamics bias ready",
		zap.Float64s("sigma", cfg.Sigma),
		zap.Float64("height", cfg.Height),
		zap.Int64("pace", cfg.Pace),
		zap.Bool("well_tempered", m.wellTemp),
		zap.Bool("grid", m.field != nil),
		zap.Int("walkers", cfg.Walkers.N))
	return m, nil
}

// Close flushes and closes the hill log and peer cursors.
func (m *Meta) Close() error {
	var firstErr error
	if m.writer != nil {
		if err := m.writer.Close(); err != nil {
			firstErr = err
		}
	}
	if m.peers != nil {
		if err := m.peers.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// KernelCount returns the number of kernels held in list mode, 0 in grid
// mode.
func (m *Meta) KernelCount() int { return len(m.kernels) }

// Grid returns the backing grid in grid mode, nil otherwise.
func (m *Meta) Grid() grid.Grid { return m.field }

// replayOwn reloads this walker's own history from disk when restarting.
// Replay goes through the normal fold path without re-appending to the
// log, so a restart is idempotent. Peer history is brought in through the
// peer cursors instead, which then keep polling from where replay stopped.
func (m *Meta) replayOwn(path string) error {
	if !m.cfg.Restart {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	n, err := m.replayFile(path)
	if err != nil {
		return err
	}
	m.collector.Replayed(n)
	m.logger.Info("restarted from hills file", zap.String("file", path), zap.Int("hills", n))
	return nil
}

func (m *Meta) replayFile(path string) (int, error) {
	r, err := hills.NewReader(path, m.space)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	total := 0
	for {
		n, more, err := r.ReadChunk(replayChunk, m.applyRecord)
		total += n
		if err != nil {
			return total, errors.Wrap(err, errors.ErrorTypeRestart, "replaying "+path)
		}
		if !more {
			return total, nil
		}
		m.logger.Debug("replay in progress", zap.String("file", path), zap.Int("hills", total))
	}
}

// applyRecord folds one logged kernel back into the bias. Stored heights
// carry the well-tempered factor; it is divided back out here.
func (m *Meta) applyRecord(rec *hills.Record) error {
	height := rec.Height
	if m.wellTemp {
		height *= (m.cfg.WellTempered.BiasFactor - 1.0) / m.cfg.WellTempered.BiasFactor
	}
	return m.addKernel(kernel.New(rec.Center, rec.Sigma, height, rec.Multivariate))
}
