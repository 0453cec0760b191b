// Command flesinput runs one input-node timeslice builder (spec §4.2,
// §4.5, §6): it generates microslices, schedules each completed timeslice
// across its N_out compute-node peers, and tracks their liveness, folding
// independent timed-out observations into a joint redistribution decision
// once --failure-quorum input nodes have weighed in (spec §4.7).
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/config"
	"github.com/cbm-fles/flesnet-sub001/internal/heartbeat"
	"github.com/cbm-fles/flesnet-sub001/internal/input"
	"github.com/cbm-fles/flesnet-sub001/internal/statusline"
	"github.com/cbm-fles/flesnet-sub001/internal/transport"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// maxPendingWrites bounds the one-sided writes an InputChannel may have in
// flight at once, mirroring the fixed in-flight budget builder_test.go
// exercises (spec §4.5 InputChannel.pending_writes).
const maxPendingWrites = 8

var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	app := cli.NewApp()
	app.Name = "flesinput"
	app.Usage = "FLES input-node timeslice builder"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "input-index", Usage: "this input node's index"},
		cli.StringFlag{Name: "remoteaddrs", Usage: "comma-separated compute-node addresses, one per output channel"},
		cli.IntFlag{Name: "num-output-nodes", Usage: "number of compute nodes to connect to (N_out); defaults to len(remoteaddrs)"},
		cli.IntFlag{Name: "timeslice-size", Usage: "microslices per timeslice"},
		cli.IntFlag{Name: "overlap", Usage: "trailing overlap microslices appended to each timeslice"},
		cli.IntFlag{Name: "microslice-size", Usage: "synthetic microslice content size in bytes"},
		cli.IntFlag{Name: "data-buffer-size-exp", Usage: "log2 of the local data ring size in bytes"},
		cli.IntFlag{Name: "desc-buffer-size-exp", Usage: "log2 of the local descriptor ring size in items"},
		cli.IntFlag{Name: "max-timeslices", Usage: "stop after this many timeslices, 0 for unbounded"},
		cli.IntFlag{Name: "failure-quorum", Usage: "distinct input nodes required to agree before redistributing away from a timed-out compute node"},
		cli.StringFlag{Name: "key", Usage: "pre-shared secret between input and compute nodes", EnvVar: "FLESNET_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.IntFlag{Name: "mtu", Usage: "maximum transmission unit for UDP packets"},
		cli.IntFlag{Name: "sndwnd", Usage: "send window size (num of packets)"},
		cli.IntFlag{Name: "rcvwnd", Usage: "receive window size (num of packets)"},
		cli.IntFlag{Name: "datashard,ds", Usage: "reed-solomon erasure coding - datashard"},
		cli.IntFlag{Name: "parityshard,ps", Usage: "reed-solomon erasure coding - parityshard"},
		cli.IntFlag{Name: "nodelay", Hidden: true},
		cli.IntFlag{Name: "interval", Hidden: true},
		cli.IntFlag{Name: "resend", Hidden: true},
		cli.IntFlag{Name: "nc", Hidden: true},
		cli.BoolFlag{Name: "nocomp", Usage: "disable content-block compression"},
		cli.BoolFlag{Name: "tcp", Usage: "emulate a TCP connection (linux)"},
		cli.BoolFlag{Name: "quiet", Usage: "suppress the periodic status line"},
		cli.StringFlag{Name: "c", Usage: "config from json file, overlaid before flag values"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx *cli.Context) error {
	cfg := config.Default()
	if path := ctx.String("c"); path != "" {
		if err := config.LoadJSON(&cfg, path); err != nil {
			return errors.Wrap(err, "load config")
		}
	}
	cfg.Apply(ctx)

	addrs := splitAddrs(cfg.RemoteAddrs)
	if len(addrs) == 0 {
		return errors.New("flesinput: --remoteaddrs must name at least one compute node")
	}
	if cfg.NumOutputNodes == 0 {
		cfg.NumOutputNodes = len(addrs)
	}
	if len(addrs) != cfg.NumOutputNodes {
		return errors.Errorf("flesinput: --remoteaddrs lists %d addresses, want %d (--num-output-nodes)", len(addrs), cfg.NumOutputNodes)
	}

	key := config.DeriveKey(cfg.Key)
	block, effective := config.SelectBlockCrypt(cfg.Crypt, key)
	cfg.Crypt = effective

	smuxCfg, err := cfg.BuildSmuxConfig()
	if err != nil {
		return errors.Wrap(err, "build smux config")
	}
	tuning := transport.Tuning{
		MTU: cfg.MTU, SndWnd: cfg.SndWnd, RcvWnd: cfg.RcvWnd,
		DataShard: cfg.DataShard, ParityShard: cfg.ParityShard,
		NoDelay: cfg.NoDelay, Interval: cfg.Interval, Resend: cfg.Resend, NoCongestion: cfg.NoCongestion,
		SockBuf: cfg.SockBuf,
	}

	localInfo, err := (&wire.InputChannelStatusMessage{
		Connect: true,
		Info:    wire.InputNodeInfo{Index: uint32(cfg.InputIndex)},
	}).MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshal connect info")
	}

	n := cfg.NumOutputNodes
	channels := make([]*channel.InputChannel, n)
	links := make([]transport.Channel, n)
	sessions := make([]*transport.KCP, n)

	for i, addr := range addrs {
		sess, err := transport.DialKCP(addr, block, tuning, smuxCfg, cfg.TCP, cfg.NoComp)
		if err != nil {
			return errors.Wrapf(err, "dial compute node %d at %s", i, addr)
		}
		remoteInfo, link, err := sess.Connect(i, localInfo)
		if err != nil {
			sess.Close()
			return errors.Wrapf(err, "connect handshake with compute node %d", i)
		}
		var status wire.ComputeNodeStatusMessage
		if err := status.UnmarshalBinary(remoteInfo); err != nil {
			sess.Close()
			return errors.Wrapf(err, "unmarshal peer connect info from compute node %d", i)
		}
		ch := channel.NewInputChannel(uint16(i), status.Info.DataBufferSizeExp, status.Info.DescBufferSizeExp, maxPendingWrites)
		ch.MarkConnected(status.Info)
		channels[i] = ch
		links[i] = link
		sessions[i] = sess
		log.Printf("flesinput: connected to compute node %d at %s", i, addr)
	}

	source := input.NewGenerator(cfg.DescBufferSizeExp, cfg.DataBufferSizeExp, cfg.MicrosliceSize, uint16(cfg.InputIndex))
	genStop := make(chan struct{})
	go source.Run(time.Millisecond, genStop)
	defer close(genStop)

	poster := &fanoutPoster{links: links}
	scheduler := input.NewFailover(input.NewRoundRobin(n), n)
	stats := input.NewIntervalStats(time.Now())
	builder := input.NewBuilder(channels, scheduler, source, poster, cfg.TimesliceSize, cfg.Overlap, 1, 1, stats)
	if cfg.MaxTimeslices > 0 {
		builder.SetMaxTimeslice(cfg.MaxTimeslices)
	}

	layer := heartbeat.NewLayer(cfg.HeartbeatHistory, cfg.InactiveFactor, cfg.TimeoutFactor, cfg.InactiveRetry, time.Now)
	consensus := heartbeat.NewConsensus(cfg.FailureQuorum)

	var mu sync.Mutex
	for i := range sessions {
		i := i
		go receiveLoop(i, sessions[i], links[i], channels[i], builder, layer, cfg.InputIndex, &mu)
	}

	stop := make(chan struct{})
	printer := statusline.NewPrinter(os.Stderr, fmt.Sprintf("input-%d", cfg.InputIndex), cfg.Quiet,
		&statusline.InputSource{Builder: builder, Stats: stats}, &statusline.InputChannelHealth{Layer: layer, Channels: channels})
	go printer.Run(2*time.Second, stop)
	defer close(stop)

	heartbeatTicker := time.NewTicker(time.Second)
	defer heartbeatTicker.Stop()
	var heartbeatID uint64

	for !builder.Done() {
		select {
		case <-heartbeatTicker.C:
			mu.Lock()
			heartbeatID++
			sendHeartbeats(links, channels, layer, consensus, scheduler, builder, heartbeatID, cfg.InputIndex, builder.NextTimeslice())
			mu.Unlock()
		default:
		}

		mu.Lock()
		if sent, err := builder.MaybeSend(); err != nil {
			log.Printf("flesinput: MaybeSend: %v", err)
		} else if !sent {
			builder.SyncSourceIfDue()
		}
		for i, ch := range channels {
			_, _ = ch.TrySyncPositions(func(msg wire.InputChannelStatusMessage) error {
				payload, err := msg.MarshalBinary()
				if err != nil {
					return err
				}
				return links[i].PostSend(wire.SendStatus, payload)
			})
		}
		mu.Unlock()

		if cfg.MaxTimeslices > 0 && builder.NextTimeslice() >= cfg.MaxTimeslices {
			builder.Finalize()
		}
		time.Sleep(time.Millisecond)
	}
	log.Printf("flesinput: every channel done, shutting down")
	return nil
}

// receiveLoop demultiplexes one compute node's acknowledgements and
// heartbeat traffic into the shared builder/layer/consensus state.
func receiveLoop(idx int, sess *transport.KCP, link transport.Channel, ch *channel.InputChannel, builder *input.Builder, layer *heartbeat.Layer, inputIndex int, mu *sync.Mutex) {
	for {
		select {
		case compl, ok := <-sess.Completions():
			if !ok {
				return
			}
			ts, _, kind := wire.DecodeWRID(compl.WRID)
			if kind == wire.WriteDesc {
				mu.Lock()
				builder.OnWriteDescComplete(idx, ts)
				mu.Unlock()
			}
		case msg, ok := <-sess.Messages():
			if !ok {
				return
			}
			switch msg.Tag {
			case wire.RecvStatus:
				var status wire.ComputeNodeStatusMessage
				if err := status.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flesinput: channel %d: bad ack: %v", idx, err)
					continue
				}
				mu.Lock()
				ch.OnStatusRecv(status)
				if status.RequestAbort {
					builder.RequestAbort()
				}
				mu.Unlock()
			case wire.HeartbeatSend:
				var hb wire.HeartbeatMessage
				if err := hb.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flesinput: channel %d: bad heartbeat: %v", idx, err)
					continue
				}
				layer.OnHeartbeatRecv(idx)
				reply := wire.HeartbeatMessage{SenderIndex: uint32(inputIndex), MessageID: hb.MessageID, Ack: true}
				payload, _ := reply.MarshalBinary()
				_ = link.PostSend(wire.HeartbeatRecv, payload)
			case wire.HeartbeatRecv:
				var hb wire.HeartbeatMessage
				if err := hb.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flesinput: channel %d: bad heartbeat ack: %v", idx, err)
					continue
				}
				layer.OnAck(idx, hb.MessageID)
			}
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if ev.Kind == transport.EventDisconnected {
				log.Printf("flesinput: channel %d: disconnected: %v", idx, ev.Err)
				mu.Lock()
				ch.MarkDisconnected()
				mu.Unlock()
				return
			}
		}
	}
}

// sendHeartbeats pings every channel and folds any newly-timed-out
// classification into the shared consensus, marking the channel excluded
// from future scheduling once this node's own report, plus every other
// expected reporter's, agree, then rewinding and redistributing any
// timeslices already sent to it (spec §4.7).
func sendHeartbeats(links []transport.Channel, channels []*channel.InputChannel, layer *heartbeat.Layer, consensus *heartbeat.Consensus, scheduler *input.Failover, builder *input.Builder, id uint64, inputIndex int, nextTs uint64) {
	for i, ch := range channels {
		if ch.State() == channel.InputDisconnected || scheduler.Failed(i) {
			continue
		}
		msg := wire.HeartbeatMessage{SenderIndex: uint32(inputIndex), MessageID: id}
		payload, err := msg.MarshalBinary()
		if err != nil {
			continue
		}
		if err := links[i].PostSend(wire.HeartbeatSend, payload); err != nil {
			continue
		}
		layer.OnHeartbeatSent(i, id)

		if _, timedOut := layer.Classify(i); timedOut {
			info := wire.FailureInfo{
				Valid:             true,
				Index:             uint32(i),
				LastCompletedDesc: ch.Window.Ack().Desc,
				TimesliceTrigger:  nextTs,
			}
			if decision, ready := consensus.AddReport(inputIndex, info); ready {
				scheduler.MarkFailed(int(decision.Index))
				builder.RedistributeFailed(int(decision.Index), decision.TimesliceTrigger)
				log.Printf("flesinput: consensus reached on compute node %d: last_completed_desc=%d timeslice_trigger=%d, excluding it from future scheduling",
					decision.Index, decision.LastCompletedDesc, decision.TimesliceTrigger)
			}
		}
	}
}

// fanoutPoster is the single channel.Poster a Builder addresses every
// channel's writes through; it demultiplexes by the channel index packed
// into WriteRequest.WRID (spec §3 wr_id layout) back out to the one
// transport.Channel that owns that physical connection.
type fanoutPoster struct {
	links []transport.Channel
}

func (p *fanoutPoster) PostWrite(w channel.WriteRequest) error {
	_, idx, _ := wire.DecodeWRID(w.WRID)
	if int(idx) >= len(p.links) {
		return errors.Errorf("fanoutPoster: write targets out-of-range channel %d", idx)
	}
	return p.links[idx].PostWrite(w)
}

func splitAddrs(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

