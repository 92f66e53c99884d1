// Package config provides the unified configuration for the metadynamics
// engine. It defines a single Config structure organized into logical
// sections, with defaults and upfront validation: every configuration error
// is fatal at setup, before the simulation starts.
//
// Example usage:
//
//	cfg := config.New("well-tempered-run")
//	cfg.Sigma = []float64{0.2, 0.2}
//	cfg.Height = 1.2
//	cfg.Pace = 500
//	cfg.WellTempered.BiasFactor = 10
//	cfg.WellTempered.Temperature = 300
//
//	if err := cfg.Validate(2); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/mdbias/metadyn/pkg/errors"
)

// DefaultKB is Boltzmann's constant in kJ/(mol·K), the engine's native MD
// unit system.
const DefaultKB = 0.0083144621

// Config is the complete configuration of one bias engine instance.
type Config struct {
	// Name identifies the engine instance in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Sigma is the Gaussian width, one value per CV, or a single value
	// when an adaptive scheme is active
	Sigma []float64 `yaml:"sigma" json:"sigma"`
	// Height is the base Gaussian height
	Height float64 `yaml:"height" json:"height"`
	// Pace is the deposition stride in steps
	Pace int64 `yaml:"pace" json:"pace"`
	// HillsFile is the hill-log file name
	HillsFile string `yaml:"hills_file" json:"hills_file"`
	// Format overrides the numeric format of hill-log fields
	Format string `yaml:"format" json:"format"`
	// Restart replays the existing hill log instead of truncating it
	Restart bool `yaml:"restart" json:"restart"`

	// WellTempered configures height rescaling
	WellTempered WellTemperedConfig `yaml:"well_tempered" json:"well_tempered"`

	// Grid stores the bias on a discretized grid instead of a kernel list
	Grid GridConfig `yaml:"grid" json:"grid"`

	// Walkers configures multi-walker hill sharing
	Walkers WalkersConfig `yaml:"walkers" json:"walkers"`

	// Interval restricts the bias to a monodimensional window
	Interval IntervalConfig `yaml:"interval" json:"interval"`

	// Adaptive selects a flexible-width scheme
	Adaptive AdaptiveConfig `yaml:"adaptive" json:"adaptive"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// WellTemperedConfig enables well-tempered metadynamics: hills shrink as
// the local bias accumulates, scaled by the bias factor and temperature.
type WellTemperedConfig struct {
	// BiasFactor > 1 enables well-tempering
	BiasFactor float64 `yaml:"bias_factor" json:"bias_factor"`
	// Temperature of the system, required when BiasFactor > 1
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// KB is Boltzmann's constant in the simulation's energy units
	KB float64 `yaml:"kb" json:"kb"`
}

// Enabled reports whether well-tempering is active.
func (w WellTemperedConfig) Enabled() bool { return w.BiasFactor > 1 }

// GridConfig describes the discretized bias store. Leaving Bins empty keeps
// the engine in list mode.
type GridConfig struct {
	// Min and Max are the per-CV grid bounds
	Min []float64 `yaml:"min" json:"min"`
	Max []float64 `yaml:"max" json:"max"`
	// Bins is the per-CV bin count; non-empty enables grid mode
	Bins []int `yaml:"bins" json:"bins"`
	// Sparse materializes nodes only when written
	Sparse bool `yaml:"sparse" json:"sparse"`
	// NoSpline disables spline interpolation
	NoSpline bool `yaml:"no_spline" json:"no_spline"`
	// SnapshotFile receives periodic full-grid dumps
	SnapshotFile string `yaml:"snapshot_file" json:"snapshot_file"`
	// SnapshotStride is the dump period in steps
	SnapshotStride int64 `yaml:"snapshot_stride" json:"snapshot_stride"`
	// KeepSnapshots preserves every dump instead of overwriting
	KeepSnapshots bool `yaml:"keep_snapshots" json:"keep_snapshots"`
}

// Enabled reports whether grid mode is active.
func (g GridConfig) Enabled() bool { return len(g.Bins) > 0 }

// WalkersConfig configures multi-walker runs sharing hills through a
// directory.
type WalkersConfig struct {
	// N is the total number of walkers
	N int `yaml:"n" json:"n"`
	// ID is this walker's id, in [0, N)
	ID int `yaml:"id" json:"id"`
	// Dir is the shared directory holding every walker's hill log
	Dir string `yaml:"dir" json:"dir"`
	// ReadStride is the peer-polling period in steps
	ReadStride int64 `yaml:"read_stride" json:"read_stride"`
}

// IntervalConfig bounds the bias on the first CV; valid only for
// monodimensional runs.
type IntervalConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Lower   float64 `yaml:"lower" json:"lower"`
	Upper   float64 `yaml:"upper" json:"upper"`
}

// AdaptiveConfig selects the flexible-width scheme: "", "NONE", "GEOM" or
// "DIFF".
type AdaptiveConfig struct {
	Scheme string `yaml:"scheme" json:"scheme"`
}

// ObservabilityConfig controls logging and metrics.
type ObservabilityConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
}

// New creates a Config with sensible defaults. Sigma, Height and Pace have
// no defaults and must be set before Validate.
func New(name string) *Config {
	return &Config{
		Name:      name,
		HillsFile: "HILLS",
		WellTempered: WellTemperedConfig{
			BiasFactor: 1.0,
			KB:         DefaultKB,
		},
		Walkers: WalkersConfig{
			N:          1,
			Dir:        ".",
			ReadStride: 1,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks the configuration against the given CV count. All checks
// are fatal at setup.
func (c *Config) Validate(dim int) error {
	if c.Height <= 0 {
		return errors.New(errors.ErrorTypeConfig, "cannot add zero height or negative height hills")
	}
	if c.Pace <= 0 {
		return errors.New(errors.ErrorTypeConfig, "frequency for hill addition is nonsensical")
	}

	adaptive := c.Adaptive.Scheme != "" && c.Adaptive.Scheme != "NONE" && c.Adaptive.Scheme != "none"
	if adaptive {
		if len(c.Sigma) != 1 {
			return errors.New(errors.ErrorTypeConfig, "adaptive widths need exactly one sigma for the chosen scheme")
		}
	} else if len(c.Sigma) != dim {
		return errors.Newf(errors.ErrorTypeDimension, "number of CVs (%d) does not match number of sigma parameters (%d)", dim, len(c.Sigma))
	}

	if c.WellTempered.BiasFactor < 1.0 {
		return errors.New(errors.ErrorTypeConfig, "well tempered bias factor is nonsensical")
	}
	if c.WellTempered.Enabled() && c.WellTempered.Temperature <= 0 {
		return errors.New(errors.ErrorTypeConfig, "well tempered metadynamics needs a temperature")
	}

	g := c.Grid
	if len(g.Min) > 0 || len(g.Max) > 0 || len(g.Bins) > 0 {
		if len(g.Min) != dim || len(g.Max) != dim || len(g.Bins) != dim {
			return errors.New(errors.ErrorTypeConfig, "grid min, max and bins must all be given, one value per CV")
		}
	}
	if g.Enabled() && g.SnapshotFile != "" && g.SnapshotStride <= 0 {
		return errors.New(errors.ErrorTypeConfig, "grid snapshot file given without a snapshot stride")
	}
	if g.Enabled() && g.SnapshotStride > 0 && g.SnapshotFile == "" {
		return errors.New(errors.ErrorTypeConfig, "grid snapshot stride given without a snapshot file")
	}

	w := c.Walkers
	if w.N < 1 {
		return errors.New(errors.ErrorTypeConfig, "number of walkers must be at least 1")
	}
	if w.ID < 0 || w.ID >= w.N {
		return errors.New(errors.ErrorTypeConfig, "walker id must be a numerical value less than the total number of walkers")
	}
	if w.N > 1 && w.ReadStride <= 0 {
		return errors.New(errors.ErrorTypeConfig, "multi-walker read stride must be positive")
	}

	if c.Interval.Enabled {
		if dim != 1 {
			return errors.New(errors.ErrorTypeConfig, "bias interval works only for monodimensional metadynamics")
		}
		if c.Interval.Upper < c.Interval.Lower {
			return errors.New(errors.ErrorTypeConfig, "the interval upper limit must be greater than the lower limit")
		}
	}
	return nil
}
