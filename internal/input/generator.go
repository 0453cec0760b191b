package input

import (
	"time"

	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// Generator is a synthetic Source: it fabricates fixed-size microslices at a
// steady rate instead of reading real detector readout, which spec.md's
// Non-goals place out of scope. It fills the same pair of managed rings any
// real Source would (spec §4.5), so Builder cannot tell the two apart.
type Generator struct {
	desc *ring.Managed[wire.MicrosliceDescriptor]
	data *ring.Managed[byte]

	microsliceSize uint32
	eqID           uint16

	nextIdx uint64

	proceed chan struct{}
}

// NewGenerator creates a Generator whose desc/data rings hold 1<<descSizeExp
// descriptors and 1<<dataSizeExp bytes respectively, fabricating
// microsliceSize-byte microslices tagged with eqID.
func NewGenerator(descSizeExp, dataSizeExp uint32, microsliceSize uint32, eqID uint16) *Generator {
	return &Generator{
		desc:           ring.NewManaged[wire.MicrosliceDescriptor](descSizeExp),
		data:           ring.NewManaged[byte](dataSizeExp),
		microsliceSize: microsliceSize,
		eqID:           eqID,
		proceed:        make(chan struct{}, 1),
	}
}

func (g *Generator) DescBuffer() *ring.Managed[wire.MicrosliceDescriptor] { return g.desc }
func (g *Generator) DataBuffer() *ring.Managed[byte]                     { return g.data }

// Proceed wakes the Run loop after Builder has advanced the read indexes,
// so a generator idling on a full ring notices freed space without waiting
// out a full poll interval.
func (g *Generator) Proceed() {
	select {
	case g.proceed <- struct{}{}:
	default:
	}
}

// Run fills the rings until stop is closed, polling every interval (and on
// every Proceed) for newly available space. Intended to run in its own
// goroutine alongside the Builder's scheduler loop.
func (g *Generator) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	content := make([]byte, g.microsliceSize)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.fill(content)
		case <-g.proceed:
			g.fill(content)
		}
	}
}

// fill appends as many microslices as currently fit, skipping the data
// ring's wrap boundary the same way a real source's append_slice would
// (spec §4.1).
func (g *Generator) fill(content []byte) {
	for {
		if g.desc.SizeAvailable() < 1 {
			return
		}
		if err := g.data.SkipBufferWrap(uint64(len(content))); err != nil {
			return
		}
		if g.data.SizeAvailable() < uint64(len(content)) {
			return
		}

		for i := range content {
			content[i] = byte(g.nextIdx + uint64(i))
		}
		d := wire.MicrosliceDescriptor{
			EqID:   g.eqID,
			SysID:  1,
			Idx:    g.nextIdx,
			Size:   g.microsliceSize,
			Offset: g.data.WriteIndex(),
		}
		if err := g.data.AppendSlice(content); err != nil {
			return
		}
		if err := g.desc.Append(d); err != nil {
			return
		}
		g.nextIdx++
	}
}
