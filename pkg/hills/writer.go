package hills

import (
	"fmt"
	"os"
	"strings"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
	"github.com/mdbias/metadyn/pkg/kernel"
)

// DefaultFieldFormat is the numeric format for hill-log values.
const DefaultFieldFormat = "%14.9f"

// Writer appends hill records to the walker's own log file. Every record is
// written with a single write call and the file is never rewritten, so
// concurrent readers only ever observe whole lines plus at most one
// incomplete trailing one.
type Writer struct {
	f      *os.File
	space  cv.Space
	format string
	clock  bool

	headerFor *bool // multivariate flag the current header was written for
}

// WriterConfig controls the on-disk representation.
type WriterConfig struct {
	// Path of the log file, owned exclusively by this writer.
	Path string
	// Restart appends to an existing file instead of truncating.
	Restart bool
	// Format overrides DefaultFieldFormat when non-empty.
	Format string
	// Clock adds the wall-clock diagnostic field (multi-walker runs).
	Clock bool
}

// NewWriter opens the walker's log for writing.
func NewWriter(cfg WriterConfig, space cv.Space) (*Writer, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if cfg.Restart {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(cfg.Path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "opening hills file for writing")
	}
	format := cfg.Format
	if format == "" {
		format = DefaultFieldFormat
	}
	return &Writer{f: f, space: space, format: format, clock: cfg.Clock}, nil
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Write appends one record. rec.Height and rec.BiasFactor must already be
// in their on-disk form.
func (w *Writer) Write(rec *Record) error {
	var sb strings.Builder

	if w.headerFor == nil || *w.headerFor != rec.Multivariate {
		w.writeHeader(&sb, rec.Multivariate)
		mv := rec.Multivariate
		w.headerFor = &mv
	}

	sb.WriteString(fmt.Sprintf(w.format, rec.Time))
	for _, c := range rec.Center {
		sb.WriteByte(' ')
		sb.WriteString(fmt.Sprintf(w.format, c))
	}
	if rec.Multivariate {
		sb.WriteString(" true")
		band, err := sigmaBand(w.space.Dim(), rec.Sigma)
		if err != nil {
			return err
		}
		for _, v := range band {
			sb.WriteByte(' ')
			sb.WriteString(fmt.Sprintf(w.format, v))
		}
	} else {
		sb.WriteString(" false")
		for _, s := range rec.Sigma {
			sb.WriteByte(' ')
			sb.WriteString(fmt.Sprintf(w.format, s))
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprintf(w.format, rec.Height))
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprintf(w.format, rec.BiasFactor))
	if w.clock {
		sb.WriteString(fmt.Sprintf(" %d", rec.Clock))
	}
	sb.WriteByte('\n')

	if _, err := w.f.WriteString(sb.String()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "appending hill record")
	}
	return nil
}

func (w *Writer) writeHeader(sb *strings.Builder, multivariate bool) {
	sb.WriteString("#! FIELDS time")
	for _, v := range w.space {
		sb.WriteByte(' ')
		sb.WriteString(v.Name)
	}
	sb.WriteString(" multivariate")
	for _, name := range sigmaFieldNames(w.space, multivariate) {
		sb.WriteByte(' ')
		sb.WriteString(name)
	}
	sb.WriteString(" height biasf")
	if w.clock {
		sb.WriteString(" clock")
	}
	sb.WriteByte('\n')
	for _, v := range w.space {
		if v.Periodic {
			fmt.Fprintf(sb, "#! SET min_%s %.9f\n", v.Name, v.Min)
			fmt.Fprintf(sb, "#! SET max_%s %.9f\n", v.Name, v.Max)
		}
	}
}

// sigmaFieldNames lists the width columns: one per CV for diagonal records,
// the band-ordered pair names for multivariate ones.
func sigmaFieldNames(space cv.Space, multivariate bool) []string {
	d := space.Dim()
	if !multivariate {
		names := make([]string, d)
		for i, v := range space {
			names[i] = "sigma_" + v.Name
		}
		return names
	}
	names := make([]string, 0, d*(d+1)/2)
	for i := 0; i < d; i++ {
		for j := 0; j < d-i; j++ {
			names = append(names, "sigma_"+space[j+i].Name+"_"+space[j].Name)
		}
	}
	return names
}

// sigmaBand converts the working inverse-matrix encoding into the banded
// Cholesky factor of the sigma matrix written to disk. The round trip keeps
// the stored form compact and positive definite by construction while the
// in-memory form stays the inverse the evaluator needs.
func sigmaBand(d int, upperInverse []float64) ([]float64, error) {
	inverse := kernel.SymFromUpper(d, upperInverse)
	sigma, err := kernel.InvertSym(inverse)
	if err != nil {
		return nil, err
	}
	return kernel.CholeskyBand(sigma)
}
