package transport

import (
	"context"
	"errors"
	"log/slog"

	"replkv/internal/raft"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Node is the part of the raft host the KV service needs.
type Node interface {
	Propose(ctx context.Context, cmd []byte) (uint64, error)
	Lookup(ctx context.Context, query []byte) ([]byte, error)
	Hash() uint64
	TriggerSnapshot(ctx context.Context) (uint64, error)
}

type KVHandler struct {
	node Node
}

func NewKVHandler(node Node) *KVHandler {
	return &KVHandler{node: node}
}

func (h *KVHandler) Propose(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.UInt64Value, error) {
	cmd := req.GetValue()
	if len(cmd) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty command")
	}
	slog.Debug("received command", "size", len(cmd))

	result, err := h.node.Propose(ctx, cmd)
	if err != nil {
		slog.Debug("propose failed", "error", err)
		return nil, toGRPCError(err)
	}
	return wrapperspb.UInt64(result), nil
}

func (h *KVHandler) Lookup(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	out, err := h.node.Lookup(ctx, req.GetValue())
	if err != nil {
		slog.Debug("lookup failed", "error", err)
		return nil, toGRPCError(err)
	}
	return wrapperspb.Bytes(out), nil
}

func (h *KVHandler) Hash(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	return wrapperspb.UInt64(h.node.Hash()), nil
}

func (h *KVHandler) Snapshot(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	index, err := h.node.TriggerSnapshot(ctx)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return wrapperspb.UInt64(index), nil
}

func toGRPCError(err error) error {
	switch {
	case errors.Is(err, raft.ErrNotLeader):
		return status.Error(codes.Unavailable, "not leader")
	case errors.Is(err, raft.ErrShuttingDown):
		return status.Error(codes.Unavailable, "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		slog.Error("request failed", "error", err)
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}
