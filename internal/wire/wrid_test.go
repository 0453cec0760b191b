package wire

import "testing"

func TestWRIDRoundTrip(t *testing.T) {
	cases := []struct {
		ts  uint64
		ch  uint16
		k   RequestKind
	}{
		{0, 0, WriteData},
		{1, 2, WriteDesc},
		{1 << 30, 1234, HeartbeatRecv},
	}
	for _, c := range cases {
		wrID := EncodeWRID(c.ts, c.ch, c.k)
		ts, ch, k := DecodeWRID(wrID)
		if ts != c.ts || ch != c.ch || k != c.k {
			t.Fatalf("round trip mismatch for %+v: got ts=%d ch=%d k=%s", c, ts, ch, k)
		}
	}
}
