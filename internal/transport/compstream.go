package transport

import (
	"net"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// compStream wraps a net.Conn with snappy compression on both directions,
// exactly as the teacher's generic/comp.go CompStream does for its TCP
// tunnel payload. Here it sits between the raw kcp.UDPSession (or tcpraw
// conn) and the smux.Session built on top of it, so the whole multiplexed
// byte stream -- descriptor writes, content writes, status and heartbeat
// messages alike -- is transparently compressed. Because compression is
// applied below smux's framing and below this repo's own length-prefixed
// write frames (kcp_transport.go's writeFramed), every byte-length and
// offset the credit window and ring buffers account for is the
// uncompressed length; compStream never changes what either endpoint
// believes it wrote or read.
type compStream struct {
	conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader
}

func newCompStream(conn net.Conn) *compStream {
	return &compStream{
		conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *compStream) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *compStream) Write(p []byte) (int, error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *compStream) Close() error                       { return c.conn.Close() }
func (c *compStream) LocalAddr() net.Addr                 { return c.conn.LocalAddr() }
func (c *compStream) RemoteAddr() net.Addr                { return c.conn.RemoteAddr() }
func (c *compStream) SetDeadline(t time.Time) error       { return c.conn.SetDeadline(t) }
func (c *compStream) SetReadDeadline(t time.Time) error   { return c.conn.SetReadDeadline(t) }
func (c *compStream) SetWriteDeadline(t time.Time) error  { return c.conn.SetWriteDeadline(t) }
