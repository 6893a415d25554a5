package raft

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"replkv/internal/domain"
	"replkv/internal/metrics"

	"go.etcd.io/etcd/pkg/v3/pbutil"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

func (n *Node) startLoop() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runLoop()
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.collectMetrics()
	}()

	slog.Info("raft loop started", "node_id", n.ID)
}

func (n *Node) collectMetrics() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.updateMetrics()
		}
	}
}

func (n *Node) updateMetrics() {
	status := n.raftNode.Status()

	if status.RaftState == etcdraft.StateLeader {
		metrics.RaftIsLeader.Set(1)
	} else {
		metrics.RaftIsLeader.Set(0)
	}

	metrics.RaftTerm.Set(float64(status.Term))
	metrics.RaftCommitIndex.Set(float64(status.Commit))
	metrics.RaftAppliedIndex.Set(float64(n.LastApplied()))
	metrics.RaftSnapshotIndex.Set(float64(n.storage.SnapshotIndex()))
}

func (n *Node) runLoop() {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			slog.Debug("raft loop stopping", "node_id", n.ID)
			return

		case <-ticker.C:
			n.raftNode.Tick()

		case errc := <-n.snapc:
			errc <- n.snapshot()

		case rd, ok := <-n.raftNode.Ready():
			if !ok {
				slog.Warn("raft ready channel closed", "node_id", n.ID)
				return
			}
			if err := n.processReady(rd); err != nil {
				slog.Error("processReady failed", "node_id", n.ID, "error", err)
				return
			}
		}
	}
}

func (n *Node) processReady(rd etcdraft.Ready) error {
	slog.Debug("processing ready",
		"node_id", n.ID,
		"entries", len(rd.Entries),
		"committed", len(rd.CommittedEntries),
		"read_states", len(rd.ReadStates),
		"has_snapshot", !etcdraft.IsEmptySnap(rd.Snapshot),
	)

	if rd.SoftState != nil {
		n.updateLeader(rd.SoftState.Lead)
	}

	start := time.Now()
	if err := n.storage.SaveReady(rd); err != nil {
		return fmt.Errorf("save ready: %w", err)
	}
	metrics.WALWriteDuration.Observe(time.Since(start).Seconds())
	metrics.WALWritesTotal.Add(float64(len(rd.Entries)))

	// a single-voter group has nobody to send to
	if len(rd.Messages) > 0 {
		slog.Debug("dropping outbound raft messages", "node_id", n.ID, "count", len(rd.Messages))
	}

	if !etcdraft.IsEmptySnap(rd.Snapshot) {
		if err := n.restoreStateMachine(rd.Snapshot); err != nil {
			return err
		}
		slog.Info("installed raft snapshot", "node_id", n.ID, "index", rd.Snapshot.Metadata.Index)
	}

	n.handleReadStates(rd.ReadStates)

	if err := n.applyCommitted(rd.CommittedEntries); err != nil {
		return err
	}

	n.raftNode.Advance()

	n.maybeSnapshot()
	return nil
}

func (n *Node) updateLeader(lead uint64) {
	prev := n.lead.Swap(lead)
	if prev == lead {
		return
	}
	slog.Info("raft leader changed", "node_id", n.ID, "from", prev, "to", lead)
}

func (n *Node) applyCommitted(entries []raftpb.Entry) error {
	for i := range entries {
		e := &entries[i]
		if e.Index <= n.LastApplied() {
			continue
		}

		switch e.Type {
		case raftpb.EntryNormal:
			n.applyNormal(e)

		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			pbutil.MustUnmarshal(&cc, e.Data)
			if err := n.applyConfChange(cc); err != nil {
				return err
			}

		case raftpb.EntryConfChangeV2:
			var cc raftpb.ConfChangeV2
			pbutil.MustUnmarshal(&cc, e.Data)
			if err := n.applyConfChange(cc); err != nil {
				return err
			}
		}

		n.setApplied(e.Index)
	}
	return nil
}

func (n *Node) applyNormal(e *raftpb.Entry) {
	// leader no-op appended on election
	if len(e.Data) == 0 {
		return
	}

	id, cmd, err := decodeProposal(e.Data)
	if err != nil {
		slog.Warn("skipping malformed entry", "node_id", n.ID, "index", e.Index, "error", err)
		return
	}

	entry := &domain.Entry{Index: e.Index, Cmd: cmd}
	n.sm.Update(entry)
	n.w.Trigger(id, entry.Result)
}

func (n *Node) applyConfChange(cc raftpb.ConfChangeI) error {
	n.confState = *n.raftNode.ApplyConfChange(cc)
	if err := n.storage.SaveConfState(n.confState); err != nil {
		return fmt.Errorf("save conf state: %w", err)
	}
	slog.Info("applied conf change",
		"node_id", n.ID,
		"voters", n.confState.Voters,
		"learners", n.confState.Learners,
	)
	return nil
}

func (n *Node) maybeSnapshot() {
	if n.snapCount == 0 {
		return
	}

	applied := n.LastApplied()
	snapIndex := n.storage.SnapshotIndex()
	if applied <= snapIndex || applied-snapIndex < n.snapCount {
		return
	}

	slog.Debug("snapshot threshold reached",
		"node_id", n.ID,
		"applied", applied,
		"snapshot_index", snapIndex,
		"snap_count", n.snapCount,
	)
	if err := n.snapshot(); err != nil {
		slog.Warn("snapshot failed", "node_id", n.ID, "error", err)
	}
}

// snapshot saves the state machine at the last applied index, persists it
// and compacts the log up to that index. It runs on the raft loop so no
// entry is applied while the state is serialized.
func (n *Node) snapshot() error {
	applied := n.LastApplied()
	if applied <= n.storage.SnapshotIndex() {
		return nil
	}

	var buf bytes.Buffer
	size, code := n.sm.SaveSnapshot(&buf, nil, n.stopCh)
	if code != domain.SnapshotOK {
		return fmt.Errorf("%w: %s", ErrSnapshotFailed, code)
	}

	snap, err := n.storage.CreateSnapshot(applied, &n.confState, buf.Bytes())
	if err != nil {
		if errors.Is(err, etcdraft.ErrSnapOutOfDate) {
			return nil
		}
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := n.storage.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	if err := n.storage.Compact(applied); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	slog.Info("snapshot created", "node_id", n.ID, "index", applied, "size", size)
	return nil
}
