// Command flescompute runs one compute-node timeslice builder (spec §4.4,
// §6): it accepts one connection per configured input node, folds their
// per-channel write progress into a monotonically advancing
// completely-written pointer (the red-lantern algorithm), and hands
// completed timeslices to an in-process item distributor.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/compute"
	"github.com/cbm-fles/flesnet-sub001/internal/config"
	"github.com/cbm-fles/flesnet-sub001/internal/distributor"
	"github.com/cbm-fles/flesnet-sub001/internal/heartbeat"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/statusline"
	"github.com/cbm-fles/flesnet-sub001/internal/transport"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// VERSION is injected by buildflags, same convention as the teacher's
// client/server main.go.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "flescompute"
	app.Usage = "FLES compute-node timeslice builder"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "compute-index", Usage: "this compute node's index"},
		cli.IntFlag{Name: "num-input-nodes", Usage: "number of input nodes to accept connections from (N_in)"},
		cli.IntFlag{Name: "timeslice-size", Usage: "microslices per timeslice"},
		cli.IntFlag{Name: "data-buffer-size-exp", Usage: "log2 of each input's data ring size in bytes"},
		cli.IntFlag{Name: "desc-buffer-size-exp", Usage: "log2 of each input's descriptor ring size in items"},
		cli.IntFlag{Name: "max-timeslices", Usage: "stop after this many timeslices, 0 for unbounded"},
		cli.BoolFlag{Name: "drop", Usage: "synthesize work-item completions immediately instead of running a worker pool"},
		cli.StringFlag{Name: "processor-executable", Usage: `worker command line, "%s" is the shm id, "%i" the worker index`},
		cli.StringFlag{Name: "localaddr", Usage: "local listen address"},
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

	ln, err := transport.ListenKCP(cfg.LocalAddr, block, cfg.DataShard, cfg.ParityShard, tuning, smuxCfg, cfg.TCP, cfg.NoComp)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer ln.Close()
	log.Printf("flescompute: compute-index=%d listening on %s, expecting %d input nodes", cfg.ComputeIndex, cfg.LocalAddr, cfg.NumInputNodes)

	localInfo, err := (&wire.ComputeNodeStatusMessage{
		Connect: true,
		Info: wire.ComputeNodeInfo{
			Index:             uint32(cfg.ComputeIndex),
			DataBufferSizeExp: cfg.DataBufferSizeExp,
			DescBufferSizeExp: cfg.DescBufferSizeExp,
		},
	}).MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshal connect info")
	}

	channels := make([]*channel.ComputeChannel, cfg.NumInputNodes)
	links := make([]transport.Channel, cfg.NumInputNodes)
	sessions := make([]*transport.KCP, cfg.NumInputNodes)

	for i := 0; i < cfg.NumInputNodes; i++ {
		sess, err := ln.Accept()
		if err != nil {
			return errors.Wrap(err, "accept input-node session")
		}

		remoteInfo, link, err := sess.Accept(localInfo)
		if err != nil {
			sess.Close()
			return errors.Wrap(err, "accept channel handshake")
		}
		var status wire.InputChannelStatusMessage
		if err := status.UnmarshalBinary(remoteInfo); err != nil {
			sess.Close()
			return errors.Wrap(err, "unmarshal peer connect info")
		}

		idx := int(status.Info.Index)
		if idx < 0 || idx >= cfg.NumInputNodes || channels[idx] != nil {
			idx = i
		}
		descRing := ring.New[wire.TimesliceComponentDescriptor](cfg.DescBufferSizeExp)
		ch := channel.NewComputeChannel(idx, cfg.DataBufferSizeExp, descRing)
		ch.MarkEstablished()
		channels[idx] = ch
		links[idx] = link
		sessions[idx] = sess
		log.Printf("flescompute: input node %d connected", idx)
	}

	builder := compute.New(channels, 1<<16, cfg.TimesliceSize, cfg.DataBufferSizeExp, cfg.DescBufferSizeExp, cfg.Drop)
	dist := distributor.New(4096)
	tracker := compute.NewTracker(cfg.NumInputNodes, 5*time.Second, time.Now)
	layer := heartbeat.NewLayer(cfg.HeartbeatHistory, cfg.InactiveFactor, cfg.TimeoutFactor, cfg.InactiveRetry, time.Now)

	var mu sync.Mutex
	lastDesc := make([]uint64, cfg.NumInputNodes)
	for i := range channels {
		i := i
		go receiveLoop(i, sessions[i], links[i], builder, dist, tracker, layer, cfg.TimesliceSize, lastDesc, &mu)
	}

	stop := make(chan struct{})
	printer := statusline.NewPrinter(os.Stderr, fmt.Sprintf("compute-%d", cfg.ComputeIndex), cfg.Quiet,
		&statusline.ComputeSource{Builder: builder}, nil)
	go printer.Run(2*time.Second, stop)
	defer close(stop)

	timeoutTicker := time.NewTicker(time.Second)
	defer timeoutTicker.Stop()

	for {
		select {
		case <-timeoutTicker.C:
			mu.Lock()
			pending := make([]uint64, 0, 64)
			for t := builder.Acked(); t < builder.CompletelyWritten(); t++ {
				pending = append(pending, t)
			}
			for _, ts := range tracker.CheckTimeouts(pending) {
				log.Printf("flescompute: timeslice %d timed out waiting for all contributions", ts)
			}
			mu.Unlock()
		default:
		}

		if item, ok := dist.ReceiveWorkItem(); ok {
			if cfg.Drop {
				dist.PostCompletion(distributor.Completion{TsPos: item.TsPos})
			} else {
				log.Printf("flescompute: work item ts_pos=%d ts_index=%d components=%d", item.TsPos, item.TsIndex, item.NumComponents)
			}
		}
		if c, ok := dist.TryReceiveCompletion(); ok {
			mu.Lock()
			builder.OnCompletion(c.TsPos)
			mu.Unlock()
		}
		if cfg.MaxTimeslices > 0 && builder.Acked() >= cfg.MaxTimeslices {
			log.Printf("flescompute: reached max-timeslices=%d, shutting down", cfg.MaxTimeslices)
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// receiveLoop demultiplexes one input node's tagged messages and transport
// events, folding each into the shared Builder/Tracker/Layer under mu (the
// teacher dispatches similarly per-stream in server/main.go's handleClient,
// one goroutine per smux.Stream).
func receiveLoop(idx int, sess *transport.KCP, link transport.Channel, builder *compute.Builder, dist *distributor.ItemDistributor, tracker *compute.Tracker, layer *heartbeat.Layer, timesliceSize uint64, lastDesc []uint64, mu *sync.Mutex) {
	for {
		select {
		case msg, ok := <-sess.Messages():
			if !ok {
				return
			}
			switch msg.Tag {
			case wire.WriteData, wire.WriteDataWrap:
				mu.Lock()
				builder.Channels()[idx].WriteContent(msg.TargetOffset, msg.Payload)
				mu.Unlock()
			case wire.WriteDesc:
				var desc wire.TimesliceComponentDescriptor
				if err := desc.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flescompute: channel %d: bad component descriptor: %v", idx, err)
					continue
				}
				mu.Lock()
				builder.Channels()[idx].WriteDescriptor(msg.TargetOffset, desc)
				mu.Unlock()
			case wire.SendStatus:
				var status wire.InputChannelStatusMessage
				if err := status.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flescompute: channel %d: bad status message: %v", idx, err)
					continue
				}
				mu.Lock()
				if err := builder.OnWPRecv(idx, status.WP, dist); err != nil {
					log.Printf("flescompute: channel %d: OnWPRecv: %v", idx, err)
				}
				// diagnostic arrival bookkeeping, independent of the red-lantern min
				for ts := lastDesc[idx] / timesliceSize; ts < status.WP.Desc/timesliceSize; ts++ {
					tracker.LogArrival(idx, ts)
				}
				lastDesc[idx] = status.WP.Desc
				cnAck := builder.Channels()[idx].PostAck()
				ack := wire.ComputeNodeStatusMessage{Ack: cnAck, Final: status.Final}
				mu.Unlock()

				payload, err := ack.MarshalBinary()
				if err != nil {
					log.Printf("flescompute: channel %d: marshal ack: %v", idx, err)
					continue
				}
				if err := link.PostSend(wire.RecvStatus, payload); err != nil {
					log.Printf("flescompute: channel %d: send ack: %v", idx, err)
					continue
				}
				mu.Lock()
				builder.Channels()[idx].MarkAckSent(cnAck)
				mu.Unlock()
			case wire.HeartbeatSend:
				var hb wire.HeartbeatMessage
				if err := hb.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flescompute: channel %d: bad heartbeat: %v", idx, err)
					continue
				}
				layer.OnHeartbeatRecv(idx)
				reply := wire.HeartbeatMessage{SenderIndex: hb.SenderIndex, MessageID: hb.MessageID, Ack: true}
				payload, _ := reply.MarshalBinary()
				if err := link.PostSend(wire.HeartbeatRecv, payload); err != nil {
					log.Printf("flescompute: channel %d: heartbeat ack: %v", idx, err)
				}
				if _, timedOut := layer.Classify(idx); timedOut {
					log.Printf("flescompute: channel %d: input node timed out", idx)
				}
			case wire.HeartbeatRecv:
				var hb wire.HeartbeatMessage
				if err := hb.UnmarshalBinary(msg.Payload); err != nil {
					log.Printf("flescompute: channel %d: bad heartbeat ack: %v", idx, err)
					continue
				}
				layer.OnAck(idx, hb.MessageID)
			}
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if ev.Kind == transport.EventDisconnected {
				log.Printf("flescompute: channel %d: disconnected: %v", idx, ev.Err)
				mu.Lock()
				if err := builder.OnChannelFailed(idx, dist); err != nil {
					log.Printf("flescompute: channel %d: OnChannelFailed: %v", idx, err)
				}
				mu.Unlock()
				return
			}
		}
	}
}
