// Package comm abstracts the collective reduction used by domain-decomposed
// runs. The fold and bias-summation loops are written against the
// Communicator interface: partial sums are computed on a round-robin slice
// of the work and then all-reduced, so the algorithm is identical whether
// one process or many participate.
package comm

import "sync"

// Communicator is a process-group handle supporting summation all-reduce.
// SumFloat64s blocks until every rank in the group has contributed and
// leaves the elementwise sum in buf on every rank.
type Communicator interface {
	Size() int
	Rank() int
	SumFloat64s(buf []float64) error
}

// Serial is the single-process group: the reduction is the identity and
// never blocks.
type Serial struct{}

func (Serial) Size() int                   { return 1 }
func (Serial) Rank() int                   { return 0 }
func (Serial) SumFloat64s([]float64) error { return nil }

// LocalGroup runs an all-reduce across in-process ranks, one goroutine per
// rank. It stands in for an MPI communicator in tests and single-machine
// domain-decomposed runs. Contributions are accumulated in arrival order,
// so floating-point sums may differ across runs at rounding level.
type LocalGroup struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	leaving int
	gen     int
	acc     []float64
	result  []float64
}

// NewLocalGroup creates a group of n ranks and returns one handle per rank.
func NewLocalGroup(n int) []Communicator {
	g := &LocalGroup{size: n}
	g.cond = sync.NewCond(&g.mu)
	handles := make([]Communicator, n)
	for i := 0; i < n; i++ {
		handles[i] = &localRank{group: g, rank: i}
	}
	return handles
}

type localRank struct {
	group *LocalGroup
	rank  int
}

func (r *localRank) Size() int { return r.group.size }
func (r *localRank) Rank() int { return r.rank }

func (r *localRank) SumFloat64s(buf []float64) error {
	g := r.group
	g.mu.Lock()
	defer g.mu.Unlock()

	// wait out a previous reduction that is still draining
	for g.leaving > 0 {
		g.cond.Wait()
	}
	if g.arrived == 0 {
		g.acc = make([]float64, len(buf))
	}
	for i, v := range buf {
		g.acc[i] += v
	}
	g.arrived++
	if g.arrived == g.size {
		g.result = g.acc
		g.leaving = g.size
		g.arrived = 0
		g.gen++
		g.cond.Broadcast()
	} else {
		gen := g.gen
		for g.gen == gen {
			g.cond.Wait()
		}
	}
	copy(buf, g.result)
	g.leaving--
	if g.leaving == 0 {
		g.cond.Broadcast()
	}
	return nil
}
