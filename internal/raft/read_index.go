package raft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"replkv/internal/metrics"

	etcdraft "go.etcd.io/raft/v3"
)

// Lookup answers query against state that includes every write committed
// before the call, using raft's ReadIndex protocol.
func (n *Node) Lookup(ctx context.Context, query []byte) ([]byte, error) {
	if n.stopped() {
		return nil, ErrShuttingDown
	}
	if !n.IsLeader() {
		return nil, ErrNotLeader
	}

	start := time.Now()
	index, err := n.readIndex(ctx)
	if err != nil {
		metrics.ReadIndexTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	select {
	case <-n.applyWait.Wait(index):
	case <-ctx.Done():
		metrics.ReadIndexTotal.WithLabelValues("timeout").Inc()
		return nil, ctx.Err()
	case <-n.stopCh:
		return nil, ErrShuttingDown
	}

	metrics.ReadIndexTotal.WithLabelValues("ok").Inc()
	metrics.ReadIndexDuration.Observe(time.Since(start).Seconds())
	return n.LocalLookup(query), nil
}

// LocalLookup queries the local replica without any read barrier.
func (n *Node) LocalLookup(query []byte) []byte {
	n.smMu.RLock()
	defer n.smMu.RUnlock()

	res := n.sm.Lookup(query)
	defer n.sm.FreeLookupResult(res)

	out := make([]byte, len(res.Data))
	copy(out, res.Data)
	return out
}

func (n *Node) readIndex(ctx context.Context) (uint64, error) {
	id := n.reqIDs.Next()
	ch := n.w.Register(id)

	rctx := make([]byte, 8)
	binary.BigEndian.PutUint64(rctx, id)

	if err := n.raftNode.ReadIndex(ctx, rctx); err != nil {
		n.w.Trigger(id, nil)
		if errors.Is(err, etcdraft.ErrStopped) {
			return 0, ErrShuttingDown
		}
		return 0, fmt.Errorf("raft read index: %w", err)
	}

	select {
	case x := <-ch:
		index, ok := x.(uint64)
		if !ok {
			return 0, ErrShuttingDown
		}
		return index, nil
	case <-ctx.Done():
		n.w.Trigger(id, nil)
		return 0, ctx.Err()
	case <-n.stopCh:
		return 0, ErrShuttingDown
	}
}

func (n *Node) handleReadStates(states []etcdraft.ReadState) {
	for _, rs := range states {
		if len(rs.RequestCtx) != 8 {
			slog.Warn("unexpected read state context", "node_id", n.ID, "size", len(rs.RequestCtx))
			continue
		}
		n.w.Trigger(binary.BigEndian.Uint64(rs.RequestCtx), rs.Index)
	}
}
