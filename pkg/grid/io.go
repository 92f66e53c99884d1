package grid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
)

// Snapshot text format, one node per row:
//
//	#! FIELDS d1 d2 bias der_d1 der_d2
//	#! SET min_d1 0.0
//	#! SET max_d1 3.0
//	#! SET nbins_d1 100
//	#! SET periodic_d1 false
//	<x1> <x2> <value> <der1> <der2>
//
// A blank line separates blocks of the outermost index so the file plots
// directly with gnuplot.

// WriteTo serializes the grid.
func (f *field) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	d := f.dim()

	fields := make([]string, 0, 2*d+1)
	fields = append(fields, f.space.Names()...)
	fields = append(fields, "bias")
	for _, name := range f.space.Names() {
		fields = append(fields, "der_"+name)
	}
	fmt.Fprintf(bw, "#! FIELDS %s\n", strings.Join(fields, " "))
	for i, v := range f.space {
		fmt.Fprintf(bw, "#! SET min_%s %.9f\n", v.Name, f.min[i])
		fmt.Fprintf(bw, "#! SET max_%s %.9f\n", v.Name, f.max[i])
		fmt.Fprintf(bw, "#! SET nbins_%s %d\n", v.Name, f.bins[i])
		fmt.Fprintf(bw, "#! SET periodic_%s %t\n", v.Name, v.Periodic)
	}

	x := make([]float64, d)
	der := make([]float64, d)
	idx := make([]int, d)
	for i := 0; i < f.total; i++ {
		f.indices(i, idx)
		if d > 1 && i > 0 && idx[d-1] == 0 {
			fmt.Fprintln(bw)
		}
		f.point(i, x)
		f.nodes.derivatives(i, der)
		for j := 0; j < d; j++ {
			fmt.Fprintf(bw, "%14.9f ", x[j])
		}
		fmt.Fprintf(bw, "%14.9f", f.nodes.value(i))
		for j := 0; j < d; j++ {
			fmt.Fprintf(bw, " %14.9f", der[j])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// Read reconstructs a dense grid from the snapshot format. The declared
// domains must match the live CV space.
func Read(r io.Reader, space cv.Space, spline bool) (Grid, error) {
	d := space.Dim()
	min := make([]float64, d)
	max := make([]float64, d)
	bins := make([]int, d)
	periodic := make([]bool, d)
	seen := make(map[string]bool)

	byName := make(map[string]int, d)
	for i, v := range space {
		byName[v.Name] = i
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var rows [][]float64
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#!") {
			parts := strings.Fields(line)
			if len(parts) >= 4 && parts[1] == "SET" {
				key := parts[2]
				for _, prefix := range []string{"min_", "max_", "nbins_", "periodic_"} {
					if !strings.HasPrefix(key, prefix) {
						continue
					}
					name := strings.TrimPrefix(key, prefix)
					i, ok := byName[name]
					if !ok {
						return nil, errors.Newf(errors.ErrorTypeRestart, "grid file declares unknown variable %s", name)
					}
					switch prefix {
					case "min_":
						min[i], _ = strconv.ParseFloat(parts[3], 64)
					case "max_":
						max[i], _ = strconv.ParseFloat(parts[3], 64)
					case "nbins_":
						bins[i], _ = strconv.Atoi(parts[3])
					case "periodic_":
						periodic[i] = parts[3] == "true"
					}
					seen[key] = true
				}
			}
			continue
		}
		vals := strings.Fields(line)
		if len(vals) != 2*d+1 {
			return nil, errors.Newf(errors.ErrorTypeParse, "grid row has %d fields, want %d", len(vals), 2*d+1)
		}
		row := make([]float64, 2*d+1)
		for i, v := range vals {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeParse, "bad grid row value")
			}
			row[i] = x
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "reading grid file")
	}

	for i, v := range space {
		if !seen["nbins_"+v.Name] {
			return nil, errors.Newf(errors.ErrorTypeParse, "grid file is missing nbins for %s", v.Name)
		}
		if periodic[i] != v.Periodic {
			return nil, errors.Newf(errors.ErrorTypeRestart, "grid file periodicity for %s does not match input", v.Name)
		}
	}

	g, err := NewDense(space, min, max, bins, spline)
	if err != nil {
		return nil, err
	}
	f := g.(*field)
	if len(rows) != f.total {
		return nil, errors.Newf(errors.ErrorTypeParse, "grid file has %d rows, want %d", len(rows), f.total)
	}
	for i, row := range rows {
		f.nodes.add(i, row[d], row[d+1:])
	}
	return g, nil
}
