package input

import (
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// Source is the local microslice producer a Builder reads from: a pair of
// managed ring buffers the source fills asynchronously (spec §4.5: "The
// source advances its write indexes asynchronously; the builder advances the
// read indexes lazily"). DescBuffer entries describe microslices; DataBuffer
// holds their raw content.
type Source interface {
	DescBuffer() *ring.Managed[wire.MicrosliceDescriptor]
	DataBuffer() *ring.Managed[byte]

	// Proceed notifies the source that read_index has moved, freeing space
	// for further production.
	Proceed()
}
