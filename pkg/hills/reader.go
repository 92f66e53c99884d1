package hills

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
	"github.com/mdbias/metadyn/pkg/kernel"
)

// domainTolerance is the slack allowed when comparing a periodicity domain
// read from a log against the live one; domains are written with nine
// decimals.
const domainTolerance = 1e-6

// Reader scans hill records sequentially from a log file. The cursor only
// ever advances past complete lines: a record that is still being appended
// by its owner is left untouched and picked up on a later scan.
type Reader struct {
	f      *os.File
	br     *bufio.Reader
	offset int64
	space  cv.Space

	fields []string
	// periodic domains declared by the file, keyed by CV name
	min map[string]float64
	max map[string]float64
}

// NewReader opens a log file for scanning from the beginning.
func NewReader(path string, space cv.Space) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "opening hills file for reading")
	}
	return &Reader{
		f:     f,
		br:    bufio.NewReader(f),
		space: space,
		min:   make(map[string]float64),
		max:   make(map[string]float64),
	}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Offset returns the byte position of the first unparsed record.
func (r *Reader) Offset() int64 { return r.offset }

// Scan parses the next record. It returns io.EOF when no complete record
// remains; the cursor is then positioned so a later Scan resumes exactly
// where this one stopped.
func (r *Reader) Scan() (*Record, error) {
	for {
		line, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#!") {
			if err := r.header(trimmed); err != nil {
				return nil, err
			}
			continue
		}
		return r.parse(trimmed)
	}
}

// ReadChunk scans at most n records, applying each. It returns the number
// of records applied and whether the log may hold more.
func (r *Reader) ReadChunk(n int, apply func(*Record) error) (int, bool, error) {
	for read := 0; ; read++ {
		if read == n {
			return read, true, nil
		}
		rec, err := r.Scan()
		if err == io.EOF {
			return read, false, nil
		}
		if err != nil {
			return read, false, err
		}
		if err := apply(rec); err != nil {
			return read, false, err
		}
	}
}

// nextLine returns the next complete line. On a partial trailing line the
// file position is rewound so the line is retried once its owner finishes
// writing it.
func (r *Reader) nextLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err == nil {
		r.offset += int64(len(line))
		return line, nil
	}
	if err == io.EOF {
		// rewind past the incomplete fragment
		if _, serr := r.f.Seek(r.offset, io.SeekStart); serr != nil {
			return "", errors.Wrap(serr, errors.ErrorTypeFile, "rewinding hills file")
		}
		r.br.Reset(r.f)
		return "", io.EOF
	}
	return "", errors.Wrap(err, errors.ErrorTypeFile, "reading hills file")
}

func (r *Reader) header(line string) error {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil
	}
	switch parts[1] {
	case "FIELDS":
		r.fields = parts[2:]
	case "SET":
		if len(parts) != 4 {
			return errors.Newf(errors.ErrorTypeParse, "malformed SET line %q", line)
		}
		val, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeParse, "bad SET value")
		}
		if name, ok := strings.CutPrefix(parts[2], "min_"); ok {
			r.min[name] = val
			return r.checkDomain(name)
		}
		if name, ok := strings.CutPrefix(parts[2], "max_"); ok {
			r.max[name] = val
			return r.checkDomain(name)
		}
	}
	return nil
}

// checkDomain validates a completed periodicity declaration against the
// live CV. A mismatch means the log belongs to an incompatible setup and
// replaying it would silently corrupt the bias.
func (r *Reader) checkDomain(name string) error {
	min, okMin := r.min[name]
	max, okMax := r.max[name]
	if !okMin || !okMax {
		return nil
	}
	for _, v := range r.space {
		if v.Name != name {
			continue
		}
		if !v.Periodic {
			return errors.Newf(errors.ErrorTypeRestart,
				"in hills file periodicity for variable %s does not match periodicity in input", name)
		}
		if math.Abs(min-v.Min) > domainTolerance || math.Abs(max-v.Max) > domainTolerance {
			return errors.Newf(errors.ErrorTypeRestart,
				"in hills file periodicity for variable %s does not match periodicity in input", name)
		}
		return nil
	}
	// domain for a variable this bias does not use: tolerated
	return nil
}

func (r *Reader) parse(line string) (*Record, error) {
	if r.fields == nil {
		return nil, errors.New(errors.ErrorTypeParse, "hill record before any FIELDS header")
	}
	cols := strings.Fields(line)
	if len(cols) < len(r.fields) {
		// unknown trailing fields are tolerated, missing ones are not
		return nil, errors.Newf(errors.ErrorTypeParse, "hill record has %d fields, want %d", len(cols), len(r.fields))
	}
	byName := make(map[string]string, len(r.fields))
	for i, name := range r.fields {
		byName[name] = cols[i]
	}

	get := func(name string) (float64, error) {
		s, ok := byName[name]
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeParse, "hill record is missing required field %s", name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeParse, "bad value for field "+name)
		}
		return v, nil
	}

	rec := &Record{}
	var err error
	if rec.Time, err = get("time"); err != nil {
		return nil, err
	}
	d := r.space.Dim()
	rec.Center = make([]float64, d)
	for i, v := range r.space {
		if rec.Center[i], err = get(v.Name); err != nil {
			return nil, err
		}
	}

	switch byName["multivariate"] {
	case "true":
		rec.Multivariate = true
	case "false":
		rec.Multivariate = false
	default:
		return nil, errors.Newf(errors.ErrorTypeRestart, "cannot parse multivariate = %q", byName["multivariate"])
	}

	if rec.Multivariate {
		band := make([]float64, 0, d*(d+1)/2)
		for _, name := range sigmaFieldNames(r.space, true) {
			v, err := get(name)
			if err != nil {
				return nil, err
			}
			band = append(band, v)
		}
		sigma := kernel.BandToSym(d, band)
		inverse, err := kernel.InvertSym(sigma)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeParse, "degenerate multivariate width in hills file")
		}
		rec.Sigma = kernel.UpperFromSym(inverse)
	} else {
		rec.Sigma = make([]float64, d)
		for i, name := range sigmaFieldNames(r.space, false) {
			if rec.Sigma[i], err = get(name); err != nil {
				return nil, err
			}
		}
	}

	if rec.Height, err = get("height"); err != nil {
		return nil, err
	}
	if rec.BiasFactor, err = get("biasf"); err != nil {
		return nil, err
	}
	if s, ok := byName["clock"]; ok {
		if rec.Clock, err = parseClock(s); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func parseClock(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeParse, "bad clock field")
	}
	return v, nil
}
