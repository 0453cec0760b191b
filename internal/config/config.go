// Package config holds the run parameters of both builder processes
// (spec §6 CLI) plus the transport tuning and crypto setup the teacher's
// client/server main.go wire directly into kcp.DialWithOptions/
// ListenWithOptions. A JSON file can override any field, exactly as
// server/config.go's parseJSONConfig does, so a deployment can check in one
// config per detector partition instead of a long flag line.
package config

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli"
)

// Config is shared between the input and compute builder CLIs; each reads
// only the fields relevant to its role.
type Config struct {
	// topology (spec §6 CLI)
	ComputeIndex        int    `json:"compute-index"`
	InputIndex          int    `json:"input-index"`
	NumInputNodes       int    `json:"num-input-nodes"`
	NumOutputNodes      int    `json:"num-output-nodes"`
	TimesliceSize       uint64 `json:"timeslice-size"`
	Overlap             uint64 `json:"overlap"`
	DataBufferSizeExp   uint32 `json:"data-buffer-size-exp"`
	DescBufferSizeExp   uint32 `json:"desc-buffer-size-exp"`
	MaxTimeslices       uint64 `json:"max-timeslices"`
	Drop                bool   `json:"drop"`
	ProcessorExecutable string `json:"processor-executable"`
	FailureQuorum       int    `json:"failure-quorum"`
	MicrosliceSize      uint32 `json:"microslice-size"`

	// transport dial/listen (teacher's client/server main.go flag set)
	LocalAddr    string `json:"localaddr"`
	RemoteAddr   string `json:"remoteaddr"`
	RemoteAddrs  string `json:"remoteaddrs"`
	Key          string `json:"key"`
	Crypt        string `json:"crypt"`
	MTU          int    `json:"mtu"`
	SndWnd       int    `json:"sndwnd"`
	RcvWnd       int    `json:"rcvwnd"`
	DataShard    int    `json:"datashard"`
	ParityShard  int    `json:"parityshard"`
	NoDelay      int    `json:"nodelay"`
	Interval     int    `json:"interval"`
	Resend       int    `json:"resend"`
	NoCongestion int    `json:"nc"`
	SockBuf      int    `json:"sockbuf"`
	SmuxVer      int    `json:"smuxver"`
	SmuxBuf      int    `json:"smuxbuf"`
	StreamBuf    int    `json:"streambuf"`
	FrameSize    int    `json:"framesize"`
	KeepAlive    int    `json:"keepalive"`
	NoComp       bool   `json:"nocomp"`
	TCP          bool   `json:"tcp"`
	Quiet        bool   `json:"quiet"`

	// heartbeat (spec §4.7)
	HeartbeatHistory int     `json:"heartbeat-history"`
	InactiveFactor   float64 `json:"inactive-factor"`
	TimeoutFactor    float64 `json:"timeout-factor"`
	InactiveRetry    int     `json:"inactive-retry"`
}

// Default returns the teacher's "fast" transport-tuning defaults plus this
// repo's own protocol defaults.
func Default() Config {
	return Config{
		TimesliceSize:     100,
		DataBufferSizeExp: 27,
		DescBufferSizeExp: 20,
		Crypt:             "aes",
		MTU:               1350,
		SndWnd:            128,
		RcvWnd:            512,
		DataShard:         10,
		ParityShard:       3,
		Interval:          50,
		SockBuf:           4194304,
		SmuxVer:           2,
		SmuxBuf:           4194304,
		StreamBuf:         2097152,
		FrameSize:         8192,
		KeepAlive:         10,
		HeartbeatHistory:  16,
		InactiveFactor:    2.0,
		TimeoutFactor:     4.0,
		InactiveRetry:     3,
		FailureQuorum:     1,
		MicrosliceSize:    1024,
	}
}

// LoadJSON overlays cfg's fields with whatever path's JSON document sets
// (teacher's server/config.go parseJSONConfig).
func LoadJSON(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(cfg)
}

// Apply overlays cfg's fields with every flag the user actually set on ctx,
// leaving untouched flags (and hence earlier JSON/defaults) alone -- the
// same override order the teacher's main.go applies flag-by-flag after
// parseJSONConfig.
func (c *Config) Apply(ctx *cli.Context) {
	apply := func(name string, set func()) {
		if ctx.IsSet(name) {
			set()
		}
	}
	apply("compute-index", func() { c.ComputeIndex = ctx.Int("compute-index") })
	apply("input-index", func() { c.InputIndex = ctx.Int("input-index") })
	apply("num-input-nodes", func() { c.NumInputNodes = ctx.Int("num-input-nodes") })
	apply("num-output-nodes", func() { c.NumOutputNodes = ctx.Int("num-output-nodes") })
	apply("timeslice-size", func() { c.TimesliceSize = uint64(ctx.Int("timeslice-size")) })
	apply("overlap", func() { c.Overlap = uint64(ctx.Int("overlap")) })
	apply("data-buffer-size-exp", func() { c.DataBufferSizeExp = uint32(ctx.Int("data-buffer-size-exp")) })
	apply("desc-buffer-size-exp", func() { c.DescBufferSizeExp = uint32(ctx.Int("desc-buffer-size-exp")) })
	apply("max-timeslices", func() { c.MaxTimeslices = uint64(ctx.Int("max-timeslices")) })
	apply("drop", func() { c.Drop = ctx.Bool("drop") })
	apply("processor-executable", func() { c.ProcessorExecutable = ctx.String("processor-executable") })
	apply("failure-quorum", func() { c.FailureQuorum = ctx.Int("failure-quorum") })
	apply("microslice-size", func() { c.MicrosliceSize = uint32(ctx.Int("microslice-size")) })

	apply("localaddr", func() { c.LocalAddr = ctx.String("localaddr") })
	apply("remoteaddr", func() { c.RemoteAddr = ctx.String("remoteaddr") })
	apply("remoteaddrs", func() { c.RemoteAddrs = ctx.String("remoteaddrs") })
	apply("key", func() { c.Key = ctx.String("key") })
	apply("crypt", func() { c.Crypt = ctx.String("crypt") })
	apply("mtu", func() { c.MTU = ctx.Int("mtu") })
	apply("sndwnd", func() { c.SndWnd = ctx.Int("sndwnd") })
	apply("rcvwnd", func() { c.RcvWnd = ctx.Int("rcvwnd") })
	apply("datashard", func() { c.DataShard = ctx.Int("datashard") })
	apply("parityshard", func() { c.ParityShard = ctx.Int("parityshard") })
	apply("nodelay", func() { c.NoDelay = ctx.Int("nodelay") })
	apply("interval", func() { c.Interval = ctx.Int("interval") })
	apply("resend", func() { c.Resend = ctx.Int("resend") })
	apply("nc", func() { c.NoCongestion = ctx.Int("nc") })
	apply("nocomp", func() { c.NoComp = ctx.Bool("nocomp") })
	apply("tcp", func() { c.TCP = ctx.Bool("tcp") })
	apply("quiet", func() { c.Quiet = ctx.Bool("quiet") })
}
