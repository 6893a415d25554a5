package raft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"replkv/internal/metrics"

	etcdraft "go.etcd.io/raft/v3"
)

// proposalHeaderSize is the request ID prefix carried by every proposed
// entry so the apply loop can hand the result back to the proposer.
const proposalHeaderSize = 8

func encodeProposal(id uint64, cmd []byte) []byte {
	buf := make([]byte, proposalHeaderSize+len(cmd))
	binary.BigEndian.PutUint64(buf, id)
	copy(buf[proposalHeaderSize:], cmd)
	return buf
}

func decodeProposal(data []byte) (uint64, []byte, error) {
	if len(data) < proposalHeaderSize {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint64(data), data[proposalHeaderSize:], nil
}

// Propose replicates cmd and returns the state machine's result for it once
// the entry has been applied locally.
func (n *Node) Propose(ctx context.Context, cmd []byte) (uint64, error) {
	if n.stopped() {
		return 0, ErrShuttingDown
	}
	if !n.IsLeader() {
		return 0, ErrNotLeader
	}

	id := n.reqIDs.Next()
	ch := n.w.Register(id)
	start := time.Now()
	metrics.RaftProposalsTotal.Inc()

	slog.Debug("proposing command", "node_id", n.ID, "req_id", id, "size", len(cmd))

	if err := n.raftNode.Propose(ctx, encodeProposal(id, cmd)); err != nil {
		n.w.Trigger(id, nil)
		metrics.RaftProposalsFailed.Inc()
		if errors.Is(err, etcdraft.ErrStopped) {
			return 0, ErrShuttingDown
		}
		return 0, fmt.Errorf("raft propose: %w", err)
	}

	select {
	case x := <-ch:
		result, ok := x.(uint64)
		if !ok {
			metrics.RaftProposalsFailed.Inc()
			return 0, ErrShuttingDown
		}
		metrics.ProposalDuration.Observe(time.Since(start).Seconds())
		return result, nil
	case <-ctx.Done():
		n.w.Trigger(id, nil)
		metrics.RaftProposalsFailed.Inc()
		return 0, ctx.Err()
	case <-n.stopCh:
		metrics.RaftProposalsFailed.Inc()
		return 0, ErrShuttingDown
	}
}
