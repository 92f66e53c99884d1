package bias

import (
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mdbias/metadyn/pkg/errors"
	"github.com/mdbias/metadyn/pkg/hills"
	"github.com/mdbias/metadyn/pkg/kernel"
)

// Result is what one step hands back to the host integrator.
type Result struct {
	// Bias is the accumulated bias at the current CV point.
	Bias float64
	// Forces is the generalized force per CV: the negated bias gradient.
	Forces []float64
	// Deposited reports whether this step laid down a new kernel.
	Deposited bool
}

// Step advances the engine by one host simulation step. It computes the
// bias and forces at the supplied CV point, then applies the deposition
// rule: a kernel is laid down when step is a multiple of the pace, except
// on the very first evaluated step of a run, which never deposits. The
// adaptive estimator, grid snapshots and peer polling all tick here too.
//
// A step either completes fully or returns a fatal error; nothing here is
// retried.
func (m *Meta) Step(step int64, now float64, point []float64) (*Result, error) {
	if len(point) != m.space.Dim() {
		return nil, errors.New(errors.ErrorTypeDimension, "CV point does not match the bias dimension")
	}

	res := &Result{Forces: make([]float64, m.space.Dim())}
	biasValue, err := m.biasAndDerivatives(point, m.scratch)
	if err != nil {
		return nil, err
	}
	res.Bias = biasValue
	for i, g := range m.scratch {
		res.Forces[i] = -g
	}
	m.collector.Bias(biasValue)

	depositing := step%m.cfg.Pace == 0 && !m.firstStep
	m.firstStep = false

	if m.estimator != nil {
		m.estimator.Advance(point, depositing)
	}

	if depositing {
		if err := m.deposit(now, point); err != nil {
			return nil, err
		}
		res.Deposited = true
	}

	if m.field != nil && m.cfg.Grid.SnapshotStride > 0 && step%m.cfg.Grid.SnapshotStride == 0 {
		if err := m.writeSnapshot(step); err != nil {
			return nil, err
		}
	}

	if m.peers != nil && step%m.cfg.Walkers.ReadStride == 0 {
		read := 0
		err := m.peers.Poll(func(rec *hills.Record) error {
			read++
			return m.applyRecord(rec)
		})
		if err != nil {
			return nil, err
		}
		m.collector.PeerRead(read)
	}

	return res, nil
}

// deposit lays down one kernel at the current point and appends it to the
// hill log.
func (m *Meta) deposit(now float64, point []float64) error {
	height, err := m.height(point)
	if err != nil {
		return err
	}

	var (
		sigma        []float64
		multivariate bool
	)
	if m.estimator != nil {
		sigma, err = m.estimator.InverseMatrix()
		if err != nil {
			return err
		}
		multivariate = true
	} else {
		sigma = m.cfg.Sigma
	}

	k := kernel.New(point, sigma, height, multivariate)
	if err := m.addKernel(k); err != nil {
		return err
	}

	rec := &hills.Record{
		Time:         now,
		Center:       k.Center,
		Sigma:        k.Sigma,
		Multivariate: multivariate,
		Height:       height,
		BiasFactor:   m.cfg.WellTempered.BiasFactor,
	}
	// the log keeps the unscaled height so records stay comparable across
	// temperature settings
	if m.wellTemp {
		rec.Height *= m.cfg.WellTempered.BiasFactor / (m.cfg.WellTempered.BiasFactor - 1.0)
	}
	if m.cfg.Walkers.N > 1 {
		rec.Clock = time.Now().Unix()
	}
	if err := m.writer.Write(rec); err != nil {
		return err
	}

	m.collector.Deposited(height)
	m.logger.Debug("deposited hill",
		zap.Float64("time", now),
		zap.Float64s("center", k.Center),
		zap.Float64("height", height))
	return nil
}

// height applies the well-tempered rescaling: hills shrink exponentially
// with the bias already accumulated at the deposition point, which is what
// drives the bias toward a converged, asymptotically flat shape.
func (m *Meta) height(point []float64) (float64, error) {
	h := m.cfg.Height
	if !m.wellTemp {
		return h, nil
	}
	v, err := m.biasAndDerivatives(point, nil)
	if err != nil {
		return 0, err
	}
	wt := m.cfg.WellTempered
	return h * math.Exp(-v/(wt.KB*wt.Temperature*(wt.BiasFactor-1.0))), nil
}

// writeSnapshot dumps the full grid. With snapshot retention on, each dump
// goes to its own step-tagged file; otherwise the single snapshot file is
// replaced.
func (m *Meta) writeSnapshot(step int64) error {
	path := m.cfg.Grid.SnapshotFile
	if m.cfg.Grid.KeepSnapshots {
		path = fmt.Sprintf("%s.%d", path, step)
	} else {
		_ = os.Remove(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "creating grid snapshot")
	}
	defer f.Close()
	if err := m.field.WriteTo(f); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "writing grid snapshot")
	}
	m.collector.Snapshot()
	return nil
}
