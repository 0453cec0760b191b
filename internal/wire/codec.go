package wire

import (
	"encoding/binary"
	"fmt"
)

// wireVersion is prefixed to every status and heartbeat message (the
// microslice and timeslice-component descriptors are written without it),
// mirroring smux's own
// per-frame version byte (vendor smux/frame.go: Frame.ver) so a future
// incompatible layout change can be rejected cleanly instead of silently
// misparsed.
const wireVersion byte = 1

func putBool(b []byte, v bool) {
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

func getBool(b []byte) bool { return b[0] != 0 }

// MarshalBinary encodes d in the packed little-endian layout of spec §3.
func (d *MicrosliceDescriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeOfMicrosliceDescriptor)
	buf[0] = d.HdrID
	buf[1] = d.HdrVer
	binary.LittleEndian.PutUint16(buf[2:], d.EqID)
	binary.LittleEndian.PutUint16(buf[4:], d.Flags)
	buf[6] = d.SysID
	buf[7] = d.SysVer
	binary.LittleEndian.PutUint64(buf[8:], d.Idx)
	binary.LittleEndian.PutUint32(buf[16:], d.CRC)
	binary.LittleEndian.PutUint32(buf[20:], d.Size)
	binary.LittleEndian.PutUint64(buf[24:], d.Offset)
	return buf, nil
}

// UnmarshalBinary decodes d from the packed little-endian layout.
func (d *MicrosliceDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < SizeOfMicrosliceDescriptor {
		return fmt.Errorf("wire: short MicrosliceDescriptor: %d bytes", len(buf))
	}
	d.HdrID = buf[0]
	d.HdrVer = buf[1]
	d.EqID = binary.LittleEndian.Uint16(buf[2:])
	d.Flags = binary.LittleEndian.Uint16(buf[4:])
	d.SysID = buf[6]
	d.SysVer = buf[7]
	d.Idx = binary.LittleEndian.Uint64(buf[8:])
	d.CRC = binary.LittleEndian.Uint32(buf[16:])
	d.Size = binary.LittleEndian.Uint32(buf[20:])
	d.Offset = binary.LittleEndian.Uint64(buf[24:])
	return nil
}

// MarshalBinary encodes d in the packed little-endian layout of spec §3.
func (d *TimesliceComponentDescriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeOfTimesliceComponentDescriptor)
	binary.LittleEndian.PutUint64(buf[0:], d.TsNum)
	binary.LittleEndian.PutUint64(buf[8:], d.Offset)
	binary.LittleEndian.PutUint64(buf[16:], d.Size)
	binary.LittleEndian.PutUint64(buf[24:], d.NumMicroslices)
	return buf, nil
}

// UnmarshalBinary decodes d from the packed little-endian layout.
func (d *TimesliceComponentDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < SizeOfTimesliceComponentDescriptor {
		return fmt.Errorf("wire: short TimesliceComponentDescriptor: %d bytes", len(buf))
	}
	d.TsNum = binary.LittleEndian.Uint64(buf[0:])
	d.Offset = binary.LittleEndian.Uint64(buf[8:])
	d.Size = binary.LittleEndian.Uint64(buf[16:])
	d.NumMicroslices = binary.LittleEndian.Uint64(buf[24:])
	return nil
}

func (p ComputeNodeBufferPosition) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], p.Data)
	binary.LittleEndian.PutUint64(buf[8:], p.Desc)
}

func (p *ComputeNodeBufferPosition) unmarshalFrom(buf []byte) {
	p.Data = binary.LittleEndian.Uint64(buf[0:])
	p.Desc = binary.LittleEndian.Uint64(buf[8:])
}

const sizeOfInputNodeInfo = 4

func (i InputNodeInfo) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], i.Index)
}

func (i *InputNodeInfo) unmarshalFrom(buf []byte) {
	i.Index = binary.LittleEndian.Uint32(buf[0:])
}

const sizeOfMemoryRegion = 16

func (m MemoryRegion) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], m.Addr)
	binary.LittleEndian.PutUint64(buf[8:], m.Rkey)
}

func (m *MemoryRegion) unmarshalFrom(buf []byte) {
	m.Addr = binary.LittleEndian.Uint64(buf[0:])
	m.Rkey = binary.LittleEndian.Uint64(buf[8:])
}

const sizeOfComputeNodeInfo = sizeOfMemoryRegion*2 + 4 + 4 + 4

func (c ComputeNodeInfo) marshalInto(buf []byte) {
	c.Data.marshalInto(buf[0:])
	c.Desc.marshalInto(buf[sizeOfMemoryRegion:])
	off := sizeOfMemoryRegion * 2
	binary.LittleEndian.PutUint32(buf[off:], c.Index)
	binary.LittleEndian.PutUint32(buf[off+4:], c.DataBufferSizeExp)
	binary.LittleEndian.PutUint32(buf[off+8:], c.DescBufferSizeExp)
}

func (c *ComputeNodeInfo) unmarshalFrom(buf []byte) {
	c.Data.unmarshalFrom(buf[0:])
	c.Desc.unmarshalFrom(buf[sizeOfMemoryRegion:])
	off := sizeOfMemoryRegion * 2
	c.Index = binary.LittleEndian.Uint32(buf[off:])
	c.DataBufferSizeExp = binary.LittleEndian.Uint32(buf[off+4:])
	c.DescBufferSizeExp = binary.LittleEndian.Uint32(buf[off+8:])
}

// SizeOfInputChannelStatusMessage is the packed wire size in bytes.
const SizeOfInputChannelStatusMessage = 1 + SizeOfComputeNodeBufferPosition + 1 + 1 + 1 + sizeOfInputNodeInfo

// MarshalBinary encodes m in the packed little-endian layout.
func (m *InputChannelStatusMessage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeOfInputChannelStatusMessage)
	buf[0] = wireVersion
	o := 1
	m.WP.marshalInto(buf[o:])
	o += SizeOfComputeNodeBufferPosition
	putBool(buf[o:], m.Abort)
	o++
	putBool(buf[o:], m.Final)
	o++
	putBool(buf[o:], m.Connect)
	o++
	m.Info.marshalInto(buf[o:])
	return buf, nil
}

// UnmarshalBinary decodes m from the packed little-endian layout.
func (m *InputChannelStatusMessage) UnmarshalBinary(buf []byte) error {
	if len(buf) < SizeOfInputChannelStatusMessage {
		return fmt.Errorf("wire: short InputChannelStatusMessage: %d bytes", len(buf))
	}
	if buf[0] != wireVersion {
		return fmt.Errorf("wire: unsupported InputChannelStatusMessage version %d", buf[0])
	}
	o := 1
	m.WP.unmarshalFrom(buf[o:])
	o += SizeOfComputeNodeBufferPosition
	m.Abort = getBool(buf[o:])
	o++
	m.Final = getBool(buf[o:])
	o++
	m.Connect = getBool(buf[o:])
	o++
	m.Info.unmarshalFrom(buf[o:])
	return nil
}

// SizeOfComputeNodeStatusMessage is the packed wire size in bytes.
const SizeOfComputeNodeStatusMessage = 1 + SizeOfComputeNodeBufferPosition + 1 + 1 + 1 + sizeOfComputeNodeInfo

// MarshalBinary encodes m in the packed little-endian layout.
func (m *ComputeNodeStatusMessage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeOfComputeNodeStatusMessage)
	buf[0] = wireVersion
	o := 1
	m.Ack.marshalInto(buf[o:])
	o += SizeOfComputeNodeBufferPosition
	putBool(buf[o:], m.RequestAbort)
	o++
	putBool(buf[o:], m.Final)
	o++
	putBool(buf[o:], m.Connect)
	o++
	m.Info.marshalInto(buf[o:])
	return buf, nil
}

// UnmarshalBinary decodes m from the packed little-endian layout.
func (m *ComputeNodeStatusMessage) UnmarshalBinary(buf []byte) error {
	if len(buf) < SizeOfComputeNodeStatusMessage {
		return fmt.Errorf("wire: short ComputeNodeStatusMessage: %d bytes", len(buf))
	}
	if buf[0] != wireVersion {
		return fmt.Errorf("wire: unsupported ComputeNodeStatusMessage version %d", buf[0])
	}
	o := 1
	m.Ack.unmarshalFrom(buf[o:])
	o += SizeOfComputeNodeBufferPosition
	m.RequestAbort = getBool(buf[o:])
	o++
	m.Final = getBool(buf[o:])
	o++
	m.Connect = getBool(buf[o:])
	o++
	m.Info.unmarshalFrom(buf[o:])
	return nil
}

const sizeOfFailureInfo = 1 + 4 + 8 + 8

func (f FailureInfo) marshalInto(buf []byte) {
	putBool(buf[0:], f.Valid)
	binary.LittleEndian.PutUint32(buf[1:], f.Index)
	binary.LittleEndian.PutUint64(buf[5:], f.LastCompletedDesc)
	binary.LittleEndian.PutUint64(buf[13:], f.TimesliceTrigger)
}

func (f *FailureInfo) unmarshalFrom(buf []byte) {
	f.Valid = getBool(buf[0:])
	f.Index = binary.LittleEndian.Uint32(buf[1:])
	f.LastCompletedDesc = binary.LittleEndian.Uint64(buf[5:])
	f.TimesliceTrigger = binary.LittleEndian.Uint64(buf[13:])
}

// SizeOfHeartbeatMessage is the packed wire size in bytes.
const SizeOfHeartbeatMessage = 1 + 4 + 8 + 1 + sizeOfFailureInfo

// MarshalBinary encodes m in the packed little-endian layout.
func (m *HeartbeatMessage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeOfHeartbeatMessage)
	buf[0] = wireVersion
	o := 1
	binary.LittleEndian.PutUint32(buf[o:], m.SenderIndex)
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], m.MessageID)
	o += 8
	putBool(buf[o:], m.Ack)
	o++
	m.FailureInfo.marshalInto(buf[o:])
	return buf, nil
}

// UnmarshalBinary decodes m from the packed little-endian layout.
func (m *HeartbeatMessage) UnmarshalBinary(buf []byte) error {
	if len(buf) < SizeOfHeartbeatMessage {
		return fmt.Errorf("wire: short HeartbeatMessage: %d bytes", len(buf))
	}
	if buf[0] != wireVersion {
		return fmt.Errorf("wire: unsupported HeartbeatMessage version %d", buf[0])
	}
	o := 1
	m.SenderIndex = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	m.MessageID = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	m.Ack = getBool(buf[o:])
	o++
	m.FailureInfo.unmarshalFrom(buf[o:])
	return nil
}
