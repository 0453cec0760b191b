// Package wire defines the fixed-layout, little-endian wire structs
// exchanged between input and compute nodes (spec §3), replacing the
// original's Boost-serialized descriptors with explicit to-bytes/from-bytes
// pairs per message type (see codec.go), in the spirit of smux's own
// fixed-size binary frame header (vendor smux/frame.go: rawHeader).
package wire

// MicrosliceDescriptor is the primary opaque payload header. The core treats
// it as opaque except for Size, which drives byte accounting.
type MicrosliceDescriptor struct {
	HdrID   uint8
	HdrVer  uint8
	EqID    uint16
	Flags   uint16
	SysID   uint8
	SysVer  uint8
	Idx     uint64
	CRC     uint32
	Size    uint32
	Offset  uint64
}

// SizeOfMicrosliceDescriptor is the packed wire size in bytes.
const SizeOfMicrosliceDescriptor = 1 + 1 + 2 + 2 + 1 + 1 + 8 + 4 + 4 + 8

// TimesliceComponentDescriptor points into one compute buffer's contributing
// slice for one (component, timeslice) pair.
type TimesliceComponentDescriptor struct {
	TsNum          uint64
	Offset         uint64
	Size           uint64
	NumMicroslices uint64
}

// SizeOfTimesliceComponentDescriptor is the packed wire size in bytes.
const SizeOfTimesliceComponentDescriptor = 8 + 8 + 8 + 8

// ComputeNodeBufferPosition is a pair of monotonic counters: Data in bytes,
// Desc in items. Both are 64-bit and never wrap in a run's lifetime.
type ComputeNodeBufferPosition struct {
	Data uint64
	Desc uint64
}

// SizeOfComputeNodeBufferPosition is the packed wire size in bytes.
const SizeOfComputeNodeBufferPosition = 8 + 8

// InputNodeInfo is the private-data payload an input node sends a compute
// node at connect time.
type InputNodeInfo struct {
	Index uint32
}

// MemoryRegion describes one side of an RDMA-style registered region: a
// virtual address and a remote access key. Over the kcp/smux substrate this
// repo actually ships on (see internal/transport), Addr/Rkey are opaque
// correlation tokens rather than real RDMA keys, but they round-trip the
// same way a verbs rkey would.
type MemoryRegion struct {
	Addr uint64
	Rkey uint64
}

// ComputeNodeInfo is the private-data payload a compute node replies with.
type ComputeNodeInfo struct {
	Data               MemoryRegion
	Desc               MemoryRegion
	Index              uint32
	DataBufferSizeExp  uint32
	DescBufferSizeExp  uint32
}

// InputChannelStatusMessage flows sender (input) -> receiver (compute).
type InputChannelStatusMessage struct {
	WP      ComputeNodeBufferPosition
	Abort   bool
	Final   bool
	Connect bool
	Info    InputNodeInfo
}

// ComputeNodeStatusMessage flows receiver (compute) -> sender (input).
type ComputeNodeStatusMessage struct {
	Ack          ComputeNodeBufferPosition
	RequestAbort bool
	Final        bool
	Connect      bool
	Info         ComputeNodeInfo
}

// FailureInfo is the consensus payload carried inside a HeartbeatMessage
// once a channel has been declared timed out (spec §4.7). Kept as its own
// type rather than folded flat into HeartbeatMessage, mirroring the
// original's HeartbeatFailedNodeInfo.hpp, so it can be logged or replayed
// standalone.
type FailureInfo struct {
	Valid             bool // zero-value HeartbeatMessage carries no failure info
	Index             uint32
	LastCompletedDesc uint64
	TimesliceTrigger  uint64
}

// HeartbeatMessage is exchanged on the heartbeat tag between every pair of
// connected nodes (spec §3, §4.7).
type HeartbeatMessage struct {
	SenderIndex uint32
	MessageID   uint64
	Ack         bool
	FailureInfo FailureInfo
}
