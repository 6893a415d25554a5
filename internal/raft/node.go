package raft

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"replkv/internal/configuration/properties"
	"replkv/internal/domain"

	"go.etcd.io/etcd/pkg/v3/idutil"
	"go.etcd.io/etcd/pkg/v3/wait"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

// Node hosts one replica of a state machine behind a single-voter etcd raft
// group. Writes are proposed through raft and applied in log order; reads go
// through ReadIndex.
type Node struct {
	ID      uint64
	GroupID uint64

	raftNode etcdraft.Node
	storage  *Storage
	factory  domain.Factory

	// sm is only replaced by the raft loop; other goroutines hold smMu while
	// they use it.
	smMu sync.RWMutex
	sm   domain.StateMachine

	confState   raftpb.ConfState
	lastApplied atomic.Uint64
	lead        atomic.Uint64

	reqIDs    *idutil.Generator
	w         wait.Wait
	applyWait wait.WaitTime
	snapc     chan chan error

	tickInterval time.Duration
	snapCount    uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NodeStatus is a point-in-time view of the node for health reporting.
type NodeStatus struct {
	ID            uint64 `json:"id"`
	GroupID       uint64 `json:"group_id"`
	Leader        uint64 `json:"leader"`
	IsLeader      bool   `json:"is_leader"`
	Term          uint64 `json:"term"`
	Commit        uint64 `json:"commit"`
	Applied       uint64 `json:"applied"`
	SnapshotIndex uint64 `json:"snapshot_index"`
	Hash          uint64 `json:"hash"`
}

// NewNode opens the raft storage under rc.StorageBaseDir and starts or
// restarts the raft node. The state machine is built from factory; Start
// restores it from the latest snapshot.
func NewNode(rc *properties.RaftConfigProperties, factory domain.Factory) (*Node, error) {
	storage, applied, err := OpenStorage(rc.StorageBaseDir, rc.Wal.NoSync)
	if err != nil {
		return nil, fmt.Errorf("open raft storage: %w", err)
	}
	slog.Debug("opened raft storage", "dir", rc.StorageBaseDir, "snapshot_index", applied)

	raftNode := startOrRestartNode(newRaftConfig(rc, storage, applied), storage)

	tick := rc.TickDuration()
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	n := &Node{
		ID:           rc.NodeId,
		GroupID:      rc.GroupId,
		raftNode:     raftNode,
		storage:      storage,
		factory:      factory,
		sm:           factory(rc.GroupId, rc.NodeId),
		confState:    storage.ConfState(),
		reqIDs:       idutil.NewGenerator(uint16(rc.NodeId), time.Now()),
		w:            wait.New(),
		applyWait:    wait.NewTimeList(),
		snapc:        make(chan chan error),
		tickInterval: tick,
		snapCount:    rc.SnapCount,
		stopCh:       make(chan struct{}),
	}
	n.lastApplied.Store(applied)

	slog.Info("raft node created", "node_id", n.ID, "group_id", n.GroupID)
	return n, nil
}

// Start restores the state machine from the latest durable snapshot and
// starts the raft loop.
func (n *Node) Start() error {
	if err := n.recoverStateMachine(); err != nil {
		return err
	}
	n.startLoop()
	return nil
}

// Stop halts the raft loop and releases storage and the state machine. In
// progress snapshot operations observe the stop through their done channel.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.raftNode.Stop()

		if err := n.storage.Close(); err != nil {
			slog.Error("failed to close raft storage", "node_id", n.ID, "error", err)
		}

		n.smMu.Lock()
		if err := n.sm.Close(); err != nil {
			slog.Error("failed to close state machine", "node_id", n.ID, "error", err)
		}
		n.smMu.Unlock()

		slog.Info("raft node stopped", "node_id", n.ID)
	})
}

func (n *Node) stopped() bool {
	select {
	case <-n.stopCh:
		return true
	default:
		return false
	}
}

func (n *Node) recoverStateMachine() error {
	snap := n.storage.Snapshot()
	if etcdraft.IsEmptySnap(snap) {
		slog.Info("no snapshot, state machine starts empty", "node_id", n.ID)
		return nil
	}

	if err := n.restoreStateMachine(snap); err != nil {
		return err
	}

	slog.Info("state machine recovered from snapshot",
		"node_id", n.ID,
		"index", snap.Metadata.Index,
		"size", len(snap.Data),
		"hash", n.Hash(),
	)
	return nil
}

// restoreStateMachine builds a fresh state machine from snap and swaps it in
// for the current one.
func (n *Node) restoreStateMachine(snap raftpb.Snapshot) error {
	sm := n.factory(n.GroupID, n.ID)
	if code := sm.RecoverFromSnapshot(bytes.NewReader(snap.Data), nil, n.stopCh); code != domain.SnapshotOK {
		_ = sm.Close()
		return fmt.Errorf("%w: %s at index %d", ErrRecoverFailed, code, snap.Metadata.Index)
	}

	n.smMu.Lock()
	old := n.sm
	n.sm = sm
	n.smMu.Unlock()

	if err := old.Close(); err != nil {
		slog.Warn("failed to close replaced state machine", "node_id", n.ID, "error", err)
	}

	n.confState = snap.Metadata.ConfState
	n.setApplied(snap.Metadata.Index)
	return nil
}

func (n *Node) setApplied(index uint64) {
	n.lastApplied.Store(index)
	n.applyWait.Trigger(index)
}

// Healthy reports ErrShuttingDown once Stop has been called.
func (n *Node) Healthy() error {
	if n.stopped() {
		return ErrShuttingDown
	}
	return nil
}

func (n *Node) LastApplied() uint64 {
	return n.lastApplied.Load()
}

func (n *Node) IsLeader() bool {
	return n.lead.Load() == n.ID
}

func (n *Node) Leader() uint64 {
	return n.lead.Load()
}

// Hash returns the local state machine digest. It is not a linearizable read.
func (n *Node) Hash() uint64 {
	n.smMu.RLock()
	defer n.smMu.RUnlock()
	return n.sm.GetHash()
}

func (n *Node) Storage() *Storage {
	return n.storage
}

func (n *Node) Status() NodeStatus {
	st := n.raftNode.Status()
	return NodeStatus{
		ID:            n.ID,
		GroupID:       n.GroupID,
		Leader:        st.Lead,
		IsLeader:      st.RaftState == etcdraft.StateLeader,
		Term:          st.Term,
		Commit:        st.Commit,
		Applied:       n.LastApplied(),
		SnapshotIndex: n.storage.SnapshotIndex(),
		Hash:          n.Hash(),
	}
}

// TriggerSnapshot asks the raft loop to snapshot the state machine at the
// last applied index and returns the resulting snapshot index.
func (n *Node) TriggerSnapshot(ctx context.Context) (uint64, error) {
	errc := make(chan error, 1)

	select {
	case n.snapc <- errc:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.stopCh:
		return 0, ErrShuttingDown
	}

	select {
	case err := <-errc:
		if err != nil {
			return 0, err
		}
		return n.storage.SnapshotIndex(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.stopCh:
		return 0, ErrShuttingDown
	}
}
