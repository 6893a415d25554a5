package raft

import (
	"log/slog"

	"replkv/internal/configuration/properties"

	etcdraft "go.etcd.io/raft/v3"
)

const (
	defaultElectionTick   = 10
	defaultHeartbeatTick  = 1
	defaultMaxSizePerMsg  = 1024 * 1024
	defaultMaxInflight    = 256
	defaultMaxUncommitted = 1 << 30
)

// newRaftConfig builds the etcd raft config for a node whose latest durable
// snapshot is at applied. Raft redelivers every committed entry after it.
func newRaftConfig(rc *properties.RaftConfigProperties, storage *Storage, applied uint64) *etcdraft.Config {
	etcdCfg := rc.Etcd

	electionTick := defaultElectionTick
	if etcdCfg.ElectionTick != 0 {
		electionTick = etcdCfg.ElectionTick
	}
	heartbeatTick := defaultHeartbeatTick
	if etcdCfg.HeartbeatTick != 0 {
		heartbeatTick = etcdCfg.HeartbeatTick
	}
	maxSizePerMsg := uint64(defaultMaxSizePerMsg)
	if etcdCfg.MaxSizePerMsg != 0 {
		maxSizePerMsg = etcdCfg.MaxSizePerMsg
	}
	maxInflight := defaultMaxInflight
	if etcdCfg.MaxInflightMsgs != 0 {
		maxInflight = etcdCfg.MaxInflightMsgs
	}
	maxUncommitted := uint64(defaultMaxUncommitted)
	if etcdCfg.MaxUncommittedEntriesSize != 0 {
		maxUncommitted = etcdCfg.MaxUncommittedEntriesSize
	}

	return &etcdraft.Config{
		ID:                        rc.NodeId,
		ElectionTick:              electionTick,
		HeartbeatTick:             heartbeatTick,
		Storage:                   storage.RaftStorage(),
		Applied:                   applied,
		MaxSizePerMsg:             maxSizePerMsg,
		MaxInflightMsgs:           maxInflight,
		MaxUncommittedEntriesSize: maxUncommitted,
		PreVote:                   true,
		Logger:                    NewRaftLogger(rc.GroupId, rc.NodeId),
	}
}

// startOrRestartNode bootstraps a single-voter group on empty storage and
// restarts from persisted state otherwise.
func startOrRestartNode(c *etcdraft.Config, storage *Storage) etcdraft.Node {
	if storage.IsEmpty() {
		slog.Info("bootstrapping raft group", "node_id", c.ID)
		return etcdraft.StartNode(c, []etcdraft.Peer{{ID: c.ID}})
	}

	slog.Info("restarting raft node from saved state",
		"node_id", c.ID,
		"applied", c.Applied,
	)
	return etcdraft.RestartNode(c)
}
