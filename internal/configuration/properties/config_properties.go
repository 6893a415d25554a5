package properties

import "time"

type ApplicationConfigProperties struct {
	Profile  string `yaml:"profile"`
	LogLevel string `yaml:"log-level"`
}

// ServerConfigProperties configures the HTTP listener for /metrics and /health.
type ServerConfigProperties struct {
	Address string `yaml:"address"`
}

type TransportConfigProperties struct {
	Network              string `yaml:"network"`
	Address              string `yaml:"address"`
	RequestTimeout       uint64 `yaml:"request-timeout"`
	MaxConcurrentStreams uint32 `yaml:"max-concurrent-streams"`
}

type StateMachineConfigProperties struct {
	Digest string `yaml:"digest"`
}

type EtcdConfigProperties struct {
	ElectionTick              int    `yaml:"election-tick"`
	HeartbeatTick             int    `yaml:"heartbeat-tick"`
	MaxSizePerMsg             uint64 `yaml:"max-size-per-msg"`
	MaxInflightMsgs           int    `yaml:"max-inflight-msgs"`
	MaxUncommittedEntriesSize uint64 `yaml:"max-uncommitted-entries-size"`
}

type WriteAheadLogProperties struct {
	NoSync bool `yaml:"no-sync"`
}

type RaftConfigProperties struct {
	GroupId        uint64                  `yaml:"group-id"`
	NodeId         uint64                  `yaml:"node-id"`
	StorageBaseDir string                  `yaml:"storage-base-dir"`
	TickInterval   uint64                  `yaml:"tick-interval"`
	SnapCount      uint64                  `yaml:"snap-count"`
	Etcd           EtcdConfigProperties    `yaml:"etcd"`
	Wal            WriteAheadLogProperties `yaml:"wal"`
}

type Config struct {
	Application  ApplicationConfigProperties  `yaml:"app"`
	Server       ServerConfigProperties       `yaml:"server"`
	Transport    TransportConfigProperties    `yaml:"transport"`
	StateMachine StateMachineConfigProperties `yaml:"state-machine"`
	Raft         RaftConfigProperties         `yaml:"raft"`
}

// TickDuration converts the millisecond tick interval.
func (c *RaftConfigProperties) TickDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Millisecond
}

func (c *TransportConfigProperties) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}
