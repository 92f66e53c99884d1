package hills

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
)

// PeerSet tracks the hill logs of the other walkers sharing a directory.
// Each peer has one cursor; Poll applies every newly completed record since
// the previous poll. There is no locking and no barrier: correctness rests
// on logs being append-only with self-delimiting records, so a peer that is
// behind, restarting, or dead is simply quiet.
type PeerSet struct {
	space   cv.Space
	names   []string
	readers []*Reader
	self    int
	logger  *zap.Logger
}

// NewPeerSet prepares cursors for every walker id except self. No files are
// touched until Poll.
func NewPeerSet(dir, name string, walkers, self int, space cv.Space, logger *zap.Logger) *PeerSet {
	names := make([]string, walkers)
	for i := 0; i < walkers; i++ {
		names[i] = Filename(dir, name, walkers, i)
	}
	return &PeerSet{
		space:   space,
		names:   names,
		readers: make([]*Reader, walkers),
		self:    self,
		logger:  logger,
	}
}

// Poll scans every peer log for records past each cursor and applies them
// in file order. A peer file that does not exist yet is skipped silently:
// the peer just has not started depositing. Parse and restart-consistency
// errors are fatal.
func (p *PeerSet) Poll(apply func(*Record) error) error {
	for i := range p.names {
		if i == p.self {
			continue
		}
		if p.readers[i] == nil {
			if _, err := os.Stat(p.names[i]); os.IsNotExist(err) {
				continue
			}
			r, err := NewReader(p.names[i], p.space)
			if err != nil {
				return err
			}
			p.readers[i] = r
		}
		n := 0
		for {
			rec, err := p.readers[i].Scan()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeParse, "reading hills from "+p.names[i])
			}
			if err := apply(rec); err != nil {
				return err
			}
			n++
		}
		if n > 0 {
			p.logger.Debug("read hills from peer",
				zap.String("file", p.names[i]),
				zap.Int("records", n))
		}
	}
	return nil
}

// Close closes every open cursor.
func (p *PeerSet) Close() error {
	var firstErr error
	for _, r := range p.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
