// Package hills implements the persistent hill log: an append-only,
// line-structured record of every deposited kernel, replayed on restart and
// shared between walkers through a common directory.
//
// Each record is one line in a self-describing FIELDS format:
//
//	#! FIELDS time d1 multivariate sigma_d1 height biasf
//	#! SET min_d1 0.0
//	#! SET max_d1 6.283185307
//	     0.500000000    1.000000000 false    0.200000000    0.300000000    1.000000000
//
// Records are self-delimiting (one per line) and files are strictly
// append-only with a single writer, which is all the multi-walker protocol
// relies on: peers may observe a file mid-append and simply stop before the
// incomplete trailing line.
package hills

import (
	"fmt"
	"path/filepath"
)

// Record is one parsed or to-be-written hill-log line.
type Record struct {
	// Time is the simulation time of the deposition.
	Time float64
	// Center is the kernel center, one value per CV.
	Center []float64
	// Sigma is the kernel width in the working encoding: per-CV widths for
	// diagonal kernels, upper-triangular inverse matrix otherwise.
	Sigma []float64
	// Multivariate selects the Sigma interpretation.
	Multivariate bool
	// Height is the on-disk height. In well-tempered runs this is the
	// run-time height rescaled by biasf/(biasf-1) so logs stay comparable
	// across temperature settings; replay divides the factor back out.
	Height float64
	// BiasFactor is the well-tempered bias factor the record was written
	// with, 1 when well-tempering was off.
	BiasFactor float64
	// Clock is the wall-clock tag written in multi-walker runs, 0 otherwise.
	Clock int64
}

// Filename returns the hill-log path for one walker. Single-walker runs use
// the bare name; multi-walker runs share dir and suffix the walker id.
func Filename(dir, name string, walkers, id int) string {
	if walkers <= 1 {
		return name
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%d", name, id))
}
