package config

import "time"

// ScaffoldAddresses carries the bind/connect addresses a scaffold was wired
// with by the pipeline factory (package pipeline), decoded from that
// scaffold's demultiplexed bucket.
type ScaffoldAddresses struct {
	// Pull is the address the scaffold's data-plane Puller binds or
	// connects to, depending on its position in the pipeline.
	Pull string `mapstructure:"pull"`
	// Push is the address the scaffold's data-plane Pusher binds or
	// connects to.
	Push string `mapstructure:"push"`
	// ControlPub is the address the scaffold's control-plane Publisher
	// binds to broadcast EndOfProcess.
	ControlPub string `mapstructure:"control_pub"`
	// ControlSub is the address of the downstream scaffold's ControlPub
	// that the workers pulling from this scaffold subscribe to.
	ControlSub string `mapstructure:"control_sub"`
	// CountBind is the address this scaffold binds its Pair on so that its
	// successor can connect and read this scaffold's one-shot
	// ExpectedNItems count.
	CountBind string `mapstructure:"count_bind"`
	// CountConnect is the address of the predecessor scaffold's CountBind
	// that this scaffold dials to receive that scaffold's emitted-item
	// count.
	CountConnect string `mapstructure:"count_connect"`
	// Workers is the configured worker count for the scaffold's stage. It
	// is decoded here only; no scaffold reads it or starts workers.
	Workers int `mapstructure:"workers"`
	// ShutdownGrace is the configured drain period after EndOfProcess. It
	// is decoded here only; no scaffold reads it, and scaffolds never
	// close their workers' sockets.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	// SettleDelay is slept after a scaffold's sockets are bound/connected,
	// before it starts emitting or polling for traffic.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}
