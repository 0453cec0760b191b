package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
	"github.com/xtaci/tcpraw"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// Tuning mirrors the client/server KCP dial parameters of the teacher's
// main.go flag set (mtu, window sizes, nodelay/interval/resend/nc, FEC shard
// counts): the transport-tuning knobs SPEC_FULL.md's ambient CLI surface
// exposes unchanged, since the underlying reliability/FEC engine is still
// kcp-go/v5 regardless of what travels over it.
type Tuning struct {
	MTU            int
	SndWnd, RcvWnd int
	DataShard      int
	ParityShard    int
	NoDelay        int
	Interval       int
	Resend         int
	NoCongestion   int
	SockBuf        int
}

// DefaultTuning mirrors the teacher's "fast" mode defaults.
func DefaultTuning() Tuning {
	return Tuning{
		MTU: 1350, SndWnd: 128, RcvWnd: 512,
		DataShard: 10, ParityShard: 3,
		NoDelay: 0, Interval: 50, Resend: 0, NoCongestion: 0,
		SockBuf: 4194304,
	}
}

func applyTuning(sess *kcp.UDPSession, t Tuning) {
	sess.SetMtu(t.MTU)
	sess.SetWindowSize(t.SndWnd, t.RcvWnd)
	sess.SetNoDelay(t.NoDelay, t.Interval, t.Resend, t.NoCongestion)
	sess.SetReadBuffer(t.SockBuf)
	sess.SetWriteBuffer(t.SockBuf)
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
}

// KCP is a Transport realized over one kcp.UDPSession carrying one
// smux.Session, one smux.Stream per channel (spec §6 Transport trait,
// grounded on the teacher's client/dial.go dial + server/listen.go accept
// loop and std/smuxcfg.go's BuildSmuxConfig).
type KCP struct {
	sess *smux.Session

	mu       sync.Mutex
	channels map[int]*kcpChannel

	completions chan Completion
	messages    chan TaggedMessage
	events      chan ConnEvent

	closeOnce sync.Once
}

func newKCP(sess *smux.Session) *KCP {
	return &KCP{
		sess:        sess,
		channels:    make(map[int]*kcpChannel),
		completions: make(chan Completion, 1024),
		messages:    make(chan TaggedMessage, 1024),
		events:      make(chan ConnEvent, 64),
	}
}

// DialKCP opens a kcp.UDPSession to remoteAddr, negotiates an smux.Session
// on top, and returns a ready KCP transport (teacher's client/dial.go +
// client/main.go smux.Client call). useTCP dials over tcpraw's raw-TCP
// packet conn instead of UDP (teacher's server/listen_linux.go --tcp path,
// mirrored here for the dialing side). noComp disables the snappy
// compStream wrapper the teacher's client/main.go inserts under smux.Client
// unless --nocomp is set; SPEC_FULL.md's content-block compression is
// realized here, below smux's framing, so it never touches the credit
// window's byte accounting (see compstream.go).
func DialKCP(remoteAddr string, block kcp.BlockCrypt, tuning Tuning, smuxCfg *smux.Config, useTCP, noComp bool) (*KCP, error) {
	var udpSess *kcp.UDPSession
	var err error
	if useTCP {
		conn, derr := tcpraw.Dial("tcp", remoteAddr)
		if derr != nil {
			return nil, errors.Wrapf(ErrTransportFailed, "tcpraw dial %s: %v", remoteAddr, derr)
		}
		udpSess, err = kcp.NewConn(remoteAddr, block, tuning.DataShard, tuning.ParityShard, conn)
	} else {
		udpSess, err = kcp.DialWithOptions(remoteAddr, block, tuning.DataShard, tuning.ParityShard)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrTransportFailed, "dial %s: %v", remoteAddr, err)
	}
	applyTuning(udpSess, tuning)

	var conn net.Conn = udpSess
	if !noComp {
		conn = newCompStream(udpSess)
	}

	sess, err := smux.Client(conn, smuxCfg)
	if err != nil {
		udpSess.Close()
		return nil, errors.Wrapf(ErrTransportFailed, "smux client handshake: %v", err)
	}
	return newKCP(sess), nil
}

// KCPListener accepts inbound kcp sessions and yields one KCP transport per
// accepted connection (teacher's server/listen.go accept loop).
type KCPListener struct {
	ln      *kcp.Listener
	tuning  Tuning
	smuxCfg *smux.Config
	noComp  bool
}

// ListenKCP binds localAddr for inbound connections (teacher's
// server/listen.go ListenWithOptions call). useTCP binds over tcpraw
// instead of UDP, exactly as teacher's server/listen_linux.go does under
// --tcp. noComp mirrors DialKCP's flag so both ends of a pair agree on
// whether the stream carries a compStream wrapper.
func ListenKCP(localAddr string, block kcp.BlockCrypt, dataShard, parityShard int, tuning Tuning, smuxCfg *smux.Config, useTCP, noComp bool) (*KCPListener, error) {
	var ln *kcp.Listener
	var err error
	if useTCP {
		conn, lerr := tcpraw.Listen("tcp", localAddr)
		if lerr != nil {
			return nil, errors.Wrapf(ErrTransportFailed, "tcpraw listen %s: %v", localAddr, lerr)
		}
		ln, err = kcp.ServeConn(block, dataShard, parityShard, conn)
	} else {
		ln, err = kcp.ListenWithOptions(localAddr, block, dataShard, parityShard)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrTransportFailed, "listen %s: %v", localAddr, err)
	}
	return &KCPListener{ln: ln, tuning: tuning, smuxCfg: smuxCfg, noComp: noComp}, nil
}

// Accept blocks for the next inbound kcp session and wraps it in a KCP
// transport with an smux server session on top.
func (l *KCPListener) Accept() (*KCP, error) {
	kcpConn, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, errors.Wrapf(ErrTransportFailed, "accept: %v", err)
	}
	applyTuning(kcpConn, l.tuning)

	var conn net.Conn = kcpConn
	if !l.noComp {
		conn = newCompStream(kcpConn)
	}

	sess, err := smux.Server(conn, l.smuxCfg)
	if err != nil {
		kcpConn.Close()
		return nil, errors.Wrapf(ErrTransportFailed, "smux server handshake: %v", err)
	}
	return newKCP(sess), nil
}

func (l *KCPListener) Close() error { return l.ln.Close() }

// frame classes, prefixed to every logical message written onto a
// channel's stream so the reader side can demultiplex writes from tagged
// two-sided sends sharing the same stream.
const (
	frameKindWrite byte = 1
	frameKindSend  byte = 2
)

// Connect opens a new smux.Stream for channelIndex and exchanges localInfo
// as connect private data (spec §6). The dialing side always calls Connect;
// the accepting side calls Accept.
func (t *KCP) Connect(channelIndex int, localInfo []byte) ([]byte, Channel, error) {
	stream, err := t.sess.OpenStream()
	if err != nil {
		return nil, nil, errors.Wrapf(ErrTransportFailed, "open stream for channel %d: %v", channelIndex, err)
	}
	if err := writeConnectFrame(stream, localInfo); err != nil {
		return nil, nil, errors.Wrapf(ErrTransportFailed, "send connect info: %v", err)
	}
	remoteInfo, err := readConnectFrame(stream)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrConnectionRejected, "read peer connect info: %v", err)
	}

	ch := t.register(channelIndex, stream)
	t.events <- ConnEvent{ChannelIndex: channelIndex, Kind: EventConnected}
	return remoteInfo, ch, nil
}

// Accept waits for the next stream the peer opens, treats it as the next
// channel connect, and exchanges localInfo.
func (t *KCP) Accept(localInfo []byte) ([]byte, Channel, error) {
	stream, err := t.sess.AcceptStream()
	if err != nil {
		return nil, nil, errors.Wrapf(ErrTransportFailed, "accept stream: %v", err)
	}
	remoteInfo, err := readConnectFrame(stream)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrConnectionRejected, "read peer connect info: %v", err)
	}
	if err := writeConnectFrame(stream, localInfo); err != nil {
		return nil, nil, errors.Wrapf(ErrTransportFailed, "send connect info: %v", err)
	}

	channelIndex := int(stream.ID())
	ch := t.register(channelIndex, stream)
	t.events <- ConnEvent{ChannelIndex: channelIndex, Kind: EventConnected}
	return remoteInfo, ch, nil
}

func (t *KCP) register(channelIndex int, stream *smux.Stream) *kcpChannel {
	ch := &kcpChannel{index: channelIndex, stream: stream, owner: t}
	t.mu.Lock()
	t.channels[channelIndex] = ch
	t.mu.Unlock()
	go ch.readLoop()
	return ch
}

func writeConnectFrame(w io.Writer, info []byte) error {
	if len(info) > 255 {
		return fmt.Errorf("connect info exceeds 255 bytes: %d", len(info))
	}
	buf := make([]byte, 1+len(info))
	buf[0] = byte(len(info))
	copy(buf[1:], info)
	_, err := w.Write(buf)
	return err
}

func readConnectFrame(r io.Reader) ([]byte, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return nil, err
	}
	info := make([]byte, lenByte[0])
	if _, err := io.ReadFull(r, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (t *KCP) Completions() <-chan Completion { return t.completions }
func (t *KCP) Messages() <-chan TaggedMessage { return t.messages }
func (t *KCP) Events() <-chan ConnEvent       { return t.events }

// Close tears down the smux session and every channel's stream.
func (t *KCP) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.sess.Close()
	})
	return err
}

// kcpChannel is one smux.Stream wrapped as a transport.Channel.
type kcpChannel struct {
	index  int
	stream *smux.Stream
	owner  *KCP

	writeMu sync.Mutex
}

func (c *kcpChannel) Index() int { return c.index }

// PostWrite encodes w as a length-prefixed write frame and writes it to the
// stream in one call; smux guarantees in-order, reliable delivery, so the
// local write succeeding is this transport's notion of completion (spec §6:
// deliver completions FIFO per channel).
func (c *kcpChannel) PostWrite(w channel.WriteRequest) error {
	buf := make([]byte, 0, 1+8+1+1+1+8+4+len(w.Bytes))
	buf = append(buf, frameKindWrite)
	buf = appendUint64(buf, w.WRID)
	buf = append(buf, byte(w.Kind))
	buf = appendBool(buf, w.Fence)
	buf = appendBool(buf, w.Notify)
	buf = appendUint64(buf, w.TargetOffset)
	buf = appendUint32(buf, uint32(len(w.Bytes)))
	buf = append(buf, w.Bytes...)

	if err := c.writeFramed(buf); err != nil {
		return errors.Wrapf(ErrTransportFailed, "channel %d: write: %v", c.index, err)
	}
	if w.Notify {
		c.owner.completions <- Completion{WRID: w.WRID, Status: StatusOK, Bytes: len(w.Bytes)}
	}
	return nil
}

// PostSend encodes a two-sided tagged message and writes it to the stream.
func (c *kcpChannel) PostSend(tag wire.RequestKind, payload []byte) error {
	buf := make([]byte, 0, 1+1+4+len(payload))
	buf = append(buf, frameKindSend)
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	if err := c.writeFramed(buf); err != nil {
		return errors.Wrapf(ErrTransportFailed, "channel %d: send: %v", c.index, err)
	}
	c.owner.completions <- Completion{WRID: wire.EncodeWRID(0, uint16(c.index), tag), Status: StatusOK, Bytes: len(payload)}
	return nil
}

// writeFramed prefixes payload with its length and writes both atomically
// with respect to other writers on this stream.
func (c *kcpChannel) writeFramed(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.stream.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.stream.Write(payload)
	return err
}

// readLoop demultiplexes frames off the stream into the owner's messages
// channel until the stream closes, at which point it reports Disconnected.
func (c *kcpChannel) readLoop() {
	r := bufio.NewReader(c.stream)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			c.owner.events <- ConnEvent{ChannelIndex: c.index, Kind: EventDisconnected, Err: err}
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			c.owner.events <- ConnEvent{ChannelIndex: c.index, Kind: EventDisconnected, Err: err}
			return
		}
		msg, ok := decodeFrame(c.index, frame)
		if !ok {
			c.owner.events <- ConnEvent{ChannelIndex: c.index, Kind: EventDisconnected, Err: ErrProtocolViolation}
			return
		}
		c.owner.messages <- msg
	}
}

func decodeFrame(channelIndex int, frame []byte) (TaggedMessage, bool) {
	if len(frame) == 0 {
		return TaggedMessage{}, false
	}
	switch frame[0] {
	case frameKindWrite:
		if len(frame) < 1+8+1+1+1+8+4 {
			return TaggedMessage{}, false
		}
		wrid := binary.LittleEndian.Uint64(frame[1:])
		kind := wire.RequestKind(frame[9])
		targetOffset := binary.LittleEndian.Uint64(frame[12:])
		o := 1 + 8 + 1 + 1 + 1 + 8
		payloadLen := binary.LittleEndian.Uint32(frame[o:])
		o += 4
		if uint32(len(frame)-o) < payloadLen {
			return TaggedMessage{}, false
		}
		return TaggedMessage{ChannelIndex: channelIndex, Tag: kind, Payload: frame[o : o+int(payloadLen)], WRID: wrid, TargetOffset: targetOffset}, true
	case frameKindSend:
		if len(frame) < 1+1+4 {
			return TaggedMessage{}, false
		}
		tag := wire.RequestKind(frame[1])
		payloadLen := binary.LittleEndian.Uint32(frame[2:])
		o := 6
		if uint32(len(frame)-o) < payloadLen {
			return TaggedMessage{}, false
		}
		return TaggedMessage{ChannelIndex: channelIndex, Tag: tag, Payload: frame[o : o+int(payloadLen)]}, true
	default:
		return TaggedMessage{}, false
	}
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}
